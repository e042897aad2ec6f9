package outbox

import (
	"encoding/json"
	"time"

	"github.com/WolfCon2023/apptbook/internal/model"
)

const (
	EventBookingCommitted = "booking.committed.v1"
	EventBookingCancelled = "booking.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID         string    `json:"booking_id"`
	AppointmentTypeID string    `json:"appointment_type_id"`
	HostID            string    `json:"host_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Status            string    `json:"status"`
	CancelReason      string    `json:"cancel_reason,omitempty"`
}

// BookingCommitted announces a successful commit. Slot caches key on the
// appointment type, so consumers invalidate by AggregateID.
func BookingCommitted(b model.Booking) Event {
	return bookingEvent(EventBookingCommitted, b)
}

func BookingCancelled(b model.Booking) Event {
	return bookingEvent(EventBookingCancelled, b)
}

func bookingEvent(eventType string, b model.Booking) Event {
	payload, _ := json.Marshal(bookingPayload{
		BookingID:         b.ID,
		AppointmentTypeID: b.AppointmentTypeID,
		HostID:            b.HostID,
		StartTime:         b.StartTime,
		EndTime:           b.EndTime,
		Status:            b.Status,
		CancelReason:      b.CancelReason,
	})
	return Event{
		AggregateType: "appointment_type",
		AggregateID:   b.AppointmentTypeID,
		EventType:     eventType,
		Payload:       payload,
	}
}
