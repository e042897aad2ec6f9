package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WolfCon2023/apptbook/internal/availability"
	"github.com/WolfCon2023/apptbook/internal/model"
	"github.com/WolfCon2023/apptbook/internal/rotation"
	"github.com/WolfCon2023/apptbook/internal/slotcache"
	"github.com/WolfCon2023/apptbook/internal/storage"
)

// ScheduleStore is the slice of the schedule repository the HTTP layer needs.
type ScheduleStore interface {
	CreateHost(ctx context.Context, name, timeZone string) (model.Host, error)
	GetHost(ctx context.Context, hostID string) (model.Host, error)
	ListHosts(ctx context.Context, limit int) ([]model.Host, error)
	UpsertDayRule(ctx context.Context, hostID string, rule availability.DayRule) error
	ListDayRules(ctx context.Context, hostID string) ([]availability.DayRule, error)
	CreateTimeOff(ctx context.Context, hostID string, span availability.Interval, reason string) (model.TimeOff, error)
	ListTimeOff(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.TimeOff, error)
	DeleteTimeOff(ctx context.Context, hostID, timeOffID string) error
	TimeOffSpans(ctx context.Context, hostIDs []string, from, to time.Time) (map[string][]availability.Interval, error)
	WeeklyRules(ctx context.Context, hostIDs []string) (map[string]availability.WeeklyAvailability, error)
	CreateAppointmentType(ctx context.Context, t model.AppointmentType) (model.AppointmentType, error)
	GetAppointmentType(ctx context.Context, typeID string) (model.AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, limit int) ([]model.AppointmentType, error)
}

// BookingStore is the slice of the booking repository the HTTP layer needs.
type BookingStore interface {
	Commit(ctx context.Context, req storage.CommitRequest) (model.Booking, error)
	Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error)
	Get(ctx context.Context, bookingID string) (model.Booking, error)
	ListByType(ctx context.Context, typeID string, limit int) ([]model.Booking, error)
	BusySpans(ctx context.Context, hostIDs []string, from, to time.Time) (map[string][]availability.Interval, error)
}

const (
	defaultWindowDays = 7
	maxWindowDays     = 60
	defaultStep       = 30
	bookStep          = 15
	defaultMaxSlots   = 50
	maxMaxSlots       = 200
)

type BookingHandler struct {
	schedules ScheduleStore
	bookings  BookingStore
	cache     *slotcache.Cache
	logger    *slog.Logger
	now       func() time.Time
}

func NewBookingHandler(schedules ScheduleStore, bookings BookingStore, cache *slotcache.Cache, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		schedules: schedules,
		bookings:  bookings,
		cache:     cache,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type slotItem struct {
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	HostIDs   []string `json:"host_ids"`
}

type bookRequest struct {
	AppointmentTypeID string `json:"appointment_type_id"`
	StartTime         string `json:"start_time"`
	StepMinutes       int    `json:"step_minutes"`
	CustomerName      string `json:"customer_name"`
	CustomerEmail     string `json:"customer_email"`
}

type bookingItem struct {
	BookingID         string `json:"booking_id"`
	AppointmentTypeID string `json:"appointment_type_id"`
	HostID            string `json:"host_id"`
	CustomerName      string `json:"customer_name"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	CancelledAt       string `json:"cancelled_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type cancelRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

// Slots serves GET /api/v1/public/slots: the bookable starts for one
// appointment type over a requested window.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typeID := strings.TrimSpace(r.URL.Query().Get("appointment_type_id"))
	if typeID == "" {
		http.Error(w, "appointment_type_id is required", http.StatusBadRequest)
		return
	}

	now := h.now()
	from := now
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t.UTC()
	}
	to := from.AddDate(0, 0, defaultWindowDays)
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = t.UTC()
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	if to.Sub(from) > maxWindowDays*24*time.Hour {
		http.Error(w, "window too large", http.StatusBadRequest)
		return
	}

	step := defaultStep
	if raw := strings.TrimSpace(r.URL.Query().Get("step_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 120 {
			http.Error(w, "invalid step_minutes", http.StatusBadRequest)
			return
		}
		step = n
	}
	maxSlots := defaultMaxSlots
	if raw := strings.TrimSpace(r.URL.Query().Get("max_slots")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxMaxSlots {
			http.Error(w, "invalid max_slots", http.StatusBadRequest)
			return
		}
		maxSlots = n
	}

	win := availability.Window{From: from, To: to, StepMinutes: step, MaxSlots: maxSlots}

	ctx := r.Context()
	if slots, ok := h.cache.Lookup(ctx, typeID, win, now); ok {
		writeSlots(w, slots)
		return
	}

	appt, err := h.schedules.GetAppointmentType(ctx, typeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment type not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment type", http.StatusInternalServerError)
		return
	}

	cfg := appt.Config()
	slots, err := h.generate(ctx, cfg, win, now)
	if err != nil {
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}

	h.cache.Store(ctx, typeID, win, slots)
	writeSlots(w, slots)
}

// Book serves POST /api/v1/public/book. The requested start is re-derived
// from live schedule and booking state before the commit, so host eligibility
// is never taken from the client.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentTypeID = strings.TrimSpace(req.AppointmentTypeID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.AppointmentTypeID == "" || req.CustomerName == "" {
		http.Error(w, "appointment_type_id and customer_name required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	start = start.UTC()
	step := req.StepMinutes
	if step <= 0 {
		step = bookStep
	}
	if step > 120 {
		http.Error(w, "invalid step_minutes", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	appt, err := h.schedules.GetAppointmentType(ctx, req.AppointmentTypeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment type not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment type", http.StatusInternalServerError)
		return
	}

	cfg := appt.Config()
	slot, ok, err := h.validateStart(ctx, cfg, start, step)
	if err != nil {
		http.Error(w, "failed to validate slot", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "slot is no longer available", http.StatusConflict)
		return
	}

	booking, err := h.bookings.Commit(ctx, storage.CommitRequest{
		AppointmentTypeID: req.AppointmentTypeID,
		Slot:              slot,
		CustomerName:      req.CustomerName,
		CustomerEmail:     req.CustomerEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSlotConflict):
			http.Error(w, "time slot already booked", http.StatusConflict)
		case errors.Is(err, rotation.ErrNoHostAvailable):
			http.Error(w, "no eligible host available for this slot", http.StatusUnprocessableEntity)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "appointment type not found", http.StatusNotFound)
		default:
			h.logger.Error("booking commit failed", "err", err, "appointment_type_id", req.AppointmentTypeID)
			http.Error(w, "failed to book slot", http.StatusInternalServerError)
		}
		return
	}

	h.cache.Invalidate(ctx, booking.AppointmentTypeID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(bookingToItem(booking))
}

// List serves GET /api/v1/appointments for one appointment type.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typeID := strings.TrimSpace(r.URL.Query().Get("appointment_type_id"))
	if typeID == "" {
		http.Error(w, "appointment_type_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.bookings.ListByType(r.Context(), typeID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingToItem(b))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

// Cancel serves POST /api/v1/appointments/cancel. Cancelling an already
// cancelled booking returns its stored state unchanged.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	booking, err := h.bookings.Cancel(ctx, req.BookingID, req.Reason)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("cancel failed", "err", err, "booking_id", req.BookingID)
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	h.cache.Invalidate(ctx, booking.AppointmentTypeID)

	resp := cancelResponse{BookingID: booking.ID, Status: booking.Status}
	if booking.CancelledAt != nil {
		resp.CancelledAt = booking.CancelledAt.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// generate pulls rules, booked spans and time-off for the type's hosts and
// runs the engine over them.
func (h *BookingHandler) generate(ctx context.Context, cfg availability.TypeConfig, win availability.Window, now time.Time) ([]availability.Slot, error) {
	rules, err := h.schedules.WeeklyRules(ctx, cfg.HostIDs)
	if err != nil {
		return nil, err
	}

	// Bookings just outside the window still collide through their buffers.
	pad := time.Duration(cfg.DurationMinutes+cfg.BufferBeforeMinutes+cfg.BufferAfterMinutes) * time.Minute
	busy, err := h.bookings.BusySpans(ctx, cfg.HostIDs, win.From.Add(-pad), win.To.Add(pad))
	if err != nil {
		return nil, err
	}
	if busy == nil {
		busy = map[string][]availability.Interval{}
	}
	timeOff, err := h.schedules.TimeOffSpans(ctx, cfg.HostIDs, win.From.Add(-pad), win.To.Add(pad))
	if err != nil {
		return nil, err
	}
	for hostID, spans := range timeOff {
		busy[hostID] = append(busy[hostID], spans...)
	}

	return availability.GenerateSlots(rules, busy, cfg, win, now), nil
}

// validateStart re-runs generation over the narrowest window containing the
// requested start. A hit proves the start sits on the type's slot grid, inside
// working hours, clear of buffers and strictly in the future.
func (h *BookingHandler) validateStart(ctx context.Context, cfg availability.TypeConfig, start time.Time, step int) (availability.Slot, bool, error) {
	win := availability.Window{
		From:        start,
		To:          start.Add(time.Duration(cfg.DurationMinutes) * time.Minute),
		StepMinutes: step,
		MaxSlots:    2,
	}
	slots, err := h.generate(ctx, cfg, win, h.now())
	if err != nil {
		return availability.Slot{}, false, err
	}
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s, true, nil
		}
	}
	return availability.Slot{}, false, nil
}

func bookingToItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:         b.ID,
		AppointmentTypeID: b.AppointmentTypeID,
		HostID:            b.HostID,
		CustomerName:      b.CustomerName,
		StartTime:         b.StartTime.UTC().Format(time.RFC3339),
		EndTime:           b.EndTime.UTC().Format(time.RFC3339),
		Status:            b.Status,
		CreatedAt:         b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func writeSlots(w http.ResponseWriter, slots []availability.Slot) {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			HostIDs:   s.HostIDs,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
