// Package slotcache keeps recently computed slot lists in Redis so repeated
// public lookups for the same window do not re-run the engine. Entries are
// short-lived and dropped eagerly whenever a booking commits or cancels, so a
// stale hit can only ever over-offer, never hide a conflict: the commit path
// re-validates against live rows regardless.
package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/WolfCon2023/apptbook/internal/availability"
)

const defaultTTL = 30 * time.Second

type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a cache over rdb. A nil client yields a cache that always
// misses, which lets callers run without Redis configured.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func key(typeID string, win availability.Window) string {
	return fmt.Sprintf("slots:%s:%d:%d:%d:%d",
		typeID, win.From.Unix(), win.To.Unix(), win.StepMinutes, win.MaxSlots)
}

func genKey(typeID string) string {
	return "slots:gen:" + typeID
}

type entry struct {
	Generation int64               `json:"gen"`
	Slots      []availability.Slot `json:"slots"`
}

// Lookup returns the cached slots for the window, filtered down to starts
// strictly after now. ok is false on a miss, a generation mismatch, or any
// Redis error; cache trouble must read as a miss, never as an outage.
func (c *Cache) Lookup(ctx context.Context, typeID string, win availability.Window, now time.Time) ([]availability.Slot, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key(typeID, win)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("slot cache read failed", "error", err)
		return nil, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false
	}
	if gen, err := c.generation(ctx, typeID); err != nil || gen != e.Generation {
		return nil, false
	}
	out := e.Slots[:0:0]
	for _, s := range e.Slots {
		if s.Start.After(now) {
			out = append(out, s)
		}
	}
	return out, true
}

// Store caches the slot list for the window under the type's current
// generation. Failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, typeID string, win availability.Window, slots []availability.Slot) {
	if c == nil || c.rdb == nil {
		return
	}
	gen, err := c.generation(ctx, typeID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(entry{Generation: gen, Slots: slots})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(typeID, win), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "error", err)
	}
}

// Invalidate bumps the type's generation so every cached window for it stops
// matching at once. Called after a booking commits or cancels.
func (c *Cache) Invalidate(ctx context.Context, typeID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, genKey(typeID)).Err(); err != nil {
		c.logger.Warn("slot cache invalidate failed", "type_id", typeID, "error", err)
	}
}

func (c *Cache) generation(ctx context.Context, typeID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(typeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}
