package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/WolfCon2023/apptbook/internal/availability"
	"github.com/WolfCon2023/apptbook/internal/model"
	"github.com/WolfCon2023/apptbook/internal/outbox"
	"github.com/WolfCon2023/apptbook/internal/rotation"
)

// OutboxInserter appends a lifecycle event on the commit's own transaction.
type OutboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingRepository struct {
	db     DB
	outbox OutboxInserter
}

// NewBookingRepository wires the booking store. outbox may be nil, in which
// case no lifecycle events are recorded.
func NewBookingRepository(db DB, outbox OutboxInserter) *BookingRepository {
	return &BookingRepository{db: db, outbox: outbox}
}

// CommitRequest books one chosen slot. Slot must come from a server-side
// generation pass so HostIDs reflects true eligibility, never client input.
type CommitRequest struct {
	AppointmentTypeID string
	Slot              availability.Slot
	CustomerName      string
	CustomerEmail     string
}

// Commit books the chosen slot as one atomic unit: lock the appointment-type
// row, re-read the candidate hosts' reserved spans, resolve the host (round
// robin rotates from the persisted cursor), insert the booking, advance the
// cursor, and append the outbox event. All of it commits together or not at
// all.
//
// A concurrent commit that wins the slot surfaces as ErrSlotConflict, either
// from the in-transaction re-check or from the exclusion constraint on the
// booking insert. Round-robin exhaustion surfaces rotation.ErrNoHostAvailable
// and is not retryable for this slot.
func (r *BookingRepository) Commit(ctx context.Context, req CommitRequest) (model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := r.typeForUpdate(ctx, tx, req.AppointmentTypeID)
	if err != nil {
		return model.Booking{}, err
	}
	cfg := t.Config()
	span := cfg.BufferedSpan(req.Slot.Start)

	hostID := ""
	cursor := t.RotationCursor
	advanceCursor := false
	switch cfg.Mode {
	case availability.ModeRoundRobin:
		busy, err := busySpans(ctx, tx, cfg.HostIDs, span.Start, span.End)
		if err != nil {
			return model.Booking{}, err
		}
		host, next, err := rotation.Assign(cfg, req.Slot, busy)
		if err != nil {
			return model.Booking{}, err
		}
		hostID, cursor, advanceCursor = host, next, true
	default:
		if len(cfg.HostIDs) == 0 {
			return model.Booking{}, rotation.ErrNoHostAvailable
		}
		hostID = cfg.HostIDs[0]
		busy, err := busySpans(ctx, tx, []string{hostID}, span.Start, span.End)
		if err != nil {
			return model.Booking{}, err
		}
		if len(busy[hostID]) > 0 {
			return model.Booking{}, ErrSlotConflict
		}
	}

	b := model.Booking{
		AppointmentTypeID: t.ID,
		HostID:            hostID,
		CustomerName:      req.CustomerName,
		CustomerEmail:     req.CustomerEmail,
		StartTime:         req.Slot.Start,
		EndTime:           req.Slot.Start.Add(time.Duration(cfg.DurationMinutes) * time.Minute),
		BufferedStart:     span.Start,
		BufferedEnd:       span.End,
		Status:            model.StatusBooked,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings
			(appointment_type_id, host_id, customer_name, customer_email, start_time, end_time, buffered_start, buffered_end, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at
	`, b.AppointmentTypeID, b.HostID, b.CustomerName, b.CustomerEmail,
		b.StartTime, b.EndTime, b.BufferedStart, b.BufferedEnd, b.Status).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if exclusionViolation(err) {
			return model.Booking{}, ErrSlotConflict
		}
		return model.Booking{}, err
	}

	if advanceCursor {
		tag, err := tx.Exec(ctx, `
			UPDATE appointment_types
			SET rotation_cursor = $2, version = version + 1
			WHERE id = $1 AND version = $3
		`, t.ID, cursor, t.Version)
		if err != nil {
			return model.Booking{}, err
		}
		if tag.RowsAffected() == 0 {
			return model.Booking{}, ErrSlotConflict
		}
	}

	if r.outbox != nil {
		if err := r.outbox.Insert(ctx, tx, outbox.BookingCommitted(b)); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// Cancel marks a booking cancelled and frees its reserved span. Cancelling
// an already-cancelled booking returns the stored state unchanged.
func (r *BookingRepository) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := r.bookingForUpdate(ctx, tx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusCancelled {
		return b, nil
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, bookingID, reason).Scan(&cancelledAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.StatusCancelled
	b.CancelledAt = &cancelledAt
	b.CancelReason = reason

	if r.outbox != nil {
		if err := r.outbox.Insert(ctx, tx, outbox.BookingCancelled(b)); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, bookingSelect+`WHERE id = $1`, bookingID))
	if err != nil {
		if noRows(err) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) ListByType(ctx context.Context, typeID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, bookingSelect+`
		WHERE appointment_type_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, typeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// BusySpans returns each host's reserved buffered spans overlapping
// [from, to), the slot engine's booked input.
func (r *BookingRepository) BusySpans(ctx context.Context, hostIDs []string, from, to time.Time) (map[string][]availability.Interval, error) {
	return busySpans(ctx, r.db, hostIDs, from, to)
}

func busySpans(ctx context.Context, q querier, hostIDs []string, from, to time.Time) (map[string][]availability.Interval, error) {
	if len(hostIDs) == 0 {
		return map[string][]availability.Interval{}, nil
	}
	rows, err := q.Query(ctx, `
		SELECT host_id::text, buffered_start, buffered_end
		FROM bookings
		WHERE host_id = ANY($1::uuid[])
			AND status = 'booked'
			AND buffered_start < $3
			AND buffered_end > $2
		ORDER BY buffered_start ASC
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

func (r *BookingRepository) typeForUpdate(ctx context.Context, tx pgx.Tx, typeID string) (model.AppointmentType, error) {
	var t model.AppointmentType
	err := tx.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
			scheduling_mode, host_ids::text[], rotation_cursor, version, created_at
		FROM appointment_types
		WHERE id = $1
		FOR UPDATE
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

func (r *BookingRepository) bookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, bookingSelect+`WHERE id = $1 FOR UPDATE`, bookingID))
	if err != nil {
		if noRows(err) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

const bookingSelect = `
	SELECT id::text, appointment_type_id::text, host_id::text, customer_name, customer_email,
		start_time, end_time, buffered_start, buffered_end, status,
		cancelled_at, COALESCE(cancellation_reason, ''), created_at
	FROM bookings
`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.AppointmentTypeID,
		&b.HostID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.StartTime,
		&b.EndTime,
		&b.BufferedStart,
		&b.BufferedEnd,
		&b.Status,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}
