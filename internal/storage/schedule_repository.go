package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/WolfCon2023/apptbook/internal/availability"
	"github.com/WolfCon2023/apptbook/internal/model"
)

// ScheduleRepository owns hosts, their weekly day rules, time-off blackouts
// and appointment-type definitions.
type ScheduleRepository struct {
	db DB
}

func NewScheduleRepository(db DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) CreateHost(ctx context.Context, name, timeZone string) (model.Host, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Host{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h := model.Host{Name: name, TimeZone: timeZone, IsActive: true}
	err = tx.QueryRow(ctx, `
		INSERT INTO hosts (name, timezone)
		VALUES ($1, $2)
		RETURNING id::text, created_at
	`, name, timeZone).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return model.Host{}, err
	}

	// Default week: Mon-Fri 09:00-17:00, weekend disabled.
	for wd := 0; wd <= 6; wd++ {
		enabled := wd >= 1 && wd <= 5
		startMin, endMin := 540, 1020
		if !enabled {
			startMin, endMin = 0, 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO host_day_rules (host_id, weekday, enabled, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (host_id, weekday) DO NOTHING
		`, h.ID, wd, enabled, startMin, endMin); err != nil {
			return model.Host{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Host{}, err
	}
	return h, nil
}

func (r *ScheduleRepository) GetHost(ctx context.Context, hostID string) (model.Host, error) {
	var h model.Host
	err := r.db.QueryRow(ctx, `
		SELECT id::text, name, timezone, is_active, created_at
		FROM hosts
		WHERE id = $1
	`, hostID).Scan(&h.ID, &h.Name, &h.TimeZone, &h.IsActive, &h.CreatedAt)
	if err != nil {
		if noRows(err) {
			return model.Host{}, ErrNotFound
		}
		return model.Host{}, err
	}
	return h, nil
}

func (r *ScheduleRepository) ListHosts(ctx context.Context, limit int) ([]model.Host, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, name, timezone, is_active, created_at
		FROM hosts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Host
	for rows.Next() {
		var h model.Host
		if err := rows.Scan(&h.ID, &h.Name, &h.TimeZone, &h.IsActive, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) UpsertDayRule(ctx context.Context, hostID string, rule availability.DayRule) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM hosts WHERE id = $1
		)
	`, hostID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO host_day_rules (host_id, weekday, enabled, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (host_id, weekday) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, hostID, int(rule.Weekday), rule.Enabled, rule.StartMinute, rule.EndMinute)
	return err
}

func (r *ScheduleRepository) ListDayRules(ctx context.Context, hostID string) ([]availability.DayRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM host_day_rules
		WHERE host_id = $1
		ORDER BY weekday ASC
	`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.DayRule
	for rows.Next() {
		var weekday int
		var rule availability.DayRule
		if err := rows.Scan(&weekday, &rule.Enabled, &rule.StartMinute, &rule.EndMinute); err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(weekday)
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// WeeklyRules loads the slot engine's availability input for a set of hosts.
// Inactive hosts are omitted, which reads as zero availability downstream.
func (r *ScheduleRepository) WeeklyRules(ctx context.Context, hostIDs []string) (map[string]availability.WeeklyAvailability, error) {
	if len(hostIDs) == 0 {
		return map[string]availability.WeeklyAvailability{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT h.id::text, h.timezone, r.weekday, r.enabled, r.start_minute, r.end_minute
		FROM hosts h
		JOIN host_day_rules r ON r.host_id = h.id
		WHERE h.id = ANY($1::uuid[]) AND h.is_active
		ORDER BY h.id, r.weekday
	`, hostIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]availability.WeeklyAvailability{}
	for rows.Next() {
		var hostID, tz string
		var weekday int
		var rule availability.DayRule
		if err := rows.Scan(&hostID, &tz, &weekday, &rule.Enabled, &rule.StartMinute, &rule.EndMinute); err != nil {
			return nil, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		rule.Weekday = time.Weekday(weekday)
		w := out[hostID]
		w.TimeZone = tz
		w.Days[weekday] = rule
		out[hostID] = w
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) CreateTimeOff(ctx context.Context, hostID string, span availability.Interval, reason string) (model.TimeOff, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM hosts WHERE id = $1
		)
	`, hostID).Scan(&exists); err != nil {
		return model.TimeOff{}, err
	}
	if !exists {
		return model.TimeOff{}, ErrNotFound
	}

	t := model.TimeOff{
		ID:        uuid.NewString(),
		HostID:    hostID,
		StartTime: span.Start,
		EndTime:   span.End,
		Reason:    reason,
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO host_time_off (id, host_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, t.ID, hostID, span.Start, span.End, reason).Scan(&t.CreatedAt)
	if err != nil {
		return model.TimeOff{}, err
	}
	return t, nil
}

func (r *ScheduleRepository) ListTimeOff(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.TimeOff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, host_id::text, start_time, end_time, reason, created_at
		FROM host_time_off
		WHERE host_id = $1
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
		LIMIT $4
	`, hostID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeOff
	for rows.Next() {
		var t model.TimeOff
		if err := rows.Scan(&t.ID, &t.HostID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) DeleteTimeOff(ctx context.Context, hostID, timeOffID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM host_time_off
		WHERE id = $1 AND host_id = $2
	`, timeOffID, hostID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TimeOffSpans returns each host's blackouts overlapping [from, to) in the
// slot engine's busy-span shape.
func (r *ScheduleRepository) TimeOffSpans(ctx context.Context, hostIDs []string, from, to time.Time) (map[string][]availability.Interval, error) {
	if len(hostIDs) == 0 {
		return map[string][]availability.Interval{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT host_id::text, start_time, end_time
		FROM host_time_off
		WHERE host_id = ANY($1::uuid[])
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, hostIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]availability.Interval{}
	for rows.Next() {
		var hostID string
		var iv availability.Interval
		if err := rows.Scan(&hostID, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out[hostID] = append(out[hostID], iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) CreateAppointmentType(ctx context.Context, t model.AppointmentType) (model.AppointmentType, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointment_types
			(name, duration_minutes, buffer_before_minutes, buffer_after_minutes, scheduling_mode, host_ids)
		VALUES ($1, $2, $3, $4, $5, $6::uuid[])
		RETURNING id::text, rotation_cursor, version, created_at
	`, t.Name, t.DurationMinutes, t.BufferBeforeMinutes, t.BufferAfterMinutes, t.SchedulingMode, t.HostIDs).
		Scan(&t.ID, &t.RotationCursor, &t.Version, &t.CreatedAt)
	if err != nil {
		return model.AppointmentType{}, err
	}
	return t, nil
}

func (r *ScheduleRepository) GetAppointmentType(ctx context.Context, typeID string) (model.AppointmentType, error) {
	var t model.AppointmentType
	err := r.db.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
			scheduling_mode, host_ids::text[], rotation_cursor, version, created_at
		FROM appointment_types
		WHERE id = $1
	`, typeID).Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.BufferBeforeMinutes, &t.BufferAfterMinutes,
		&t.SchedulingMode, &t.HostIDs, &t.RotationCursor, &t.Version, &t.CreatedAt)
	if err != nil {
		if noRows(err) {
			return model.AppointmentType{}, ErrNotFound
		}
		return model.AppointmentType{}, err
	}
	return t, nil
}

func (r *ScheduleRepository) ListAppointmentTypes(ctx context.Context, limit int) ([]model.AppointmentType, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
			scheduling_mode, host_ids::text[], rotation_cursor, version, created_at
		FROM appointment_types
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentType
	for rows.Next() {
		var t model.AppointmentType
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.BufferBeforeMinutes, &t.BufferAfterMinutes,
			&t.SchedulingMode, &t.HostIDs, &t.RotationCursor, &t.Version, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
