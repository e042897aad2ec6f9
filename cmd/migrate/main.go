package main

import (
	"database/sql"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/WolfCon2023/apptbook/libs/config"
	"github.com/WolfCon2023/apptbook/libs/runtime"
)

func main() {
	logger := runtime.NewLogger("migrate")

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "err", err)
		os.Exit(1)
	}

	direction := migrate.Up
	dirName := "up"
	if len(os.Args) > 1 && os.Args[1] == "down" {
		direction = migrate.Down
		dirName = "down"
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	source := &migrate.FileMigrationSource{Dir: config.String("MIGRATIONS_DIR", "migrations")}
	n, err := migrate.Exec(db, "postgres", source, direction)
	if err != nil {
		logger.Error("migration failed", "err", err, "direction", dirName)
		os.Exit(1)
	}
	logger.Info("migrations applied", "count", n, "direction", dirName)
}
