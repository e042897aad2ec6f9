package model

import (
	"time"

	"github.com/WolfCon2023/apptbook/internal/availability"
)

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

type Host struct {
	ID        string
	Name      string
	TimeZone  string
	IsActive  bool
	CreatedAt time.Time
}

type AppointmentType struct {
	ID                  string
	Name                string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	SchedulingMode      string
	HostIDs             []string
	RotationCursor      int
	Version             int64
	CreatedAt           time.Time
}

// Config projects the stored record into the slot engine's input shape.
func (t AppointmentType) Config() availability.TypeConfig {
	return availability.TypeConfig{
		DurationMinutes:     t.DurationMinutes,
		BufferBeforeMinutes: t.BufferBeforeMinutes,
		BufferAfterMinutes:  t.BufferAfterMinutes,
		Mode:                availability.SchedulingMode(t.SchedulingMode),
		HostIDs:             t.HostIDs,
		RotationCursor:      t.RotationCursor,
	}
}

// Booking keeps both the customer-visible appointment span and the buffered
// span the host is actually reserved for; the exclusion constraint guards
// the latter.
type Booking struct {
	ID                string
	AppointmentTypeID string
	HostID            string
	CustomerName      string
	CustomerEmail     string
	StartTime         time.Time
	EndTime           time.Time
	BufferedStart     time.Time
	BufferedEnd       time.Time
	Status            string
	CancelledAt       *time.Time
	CancelReason      string
	CreatedAt         time.Time
}

type TimeOff struct {
	ID        string
	HostID    string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	CreatedAt time.Time
}
