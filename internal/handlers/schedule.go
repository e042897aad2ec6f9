package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/WolfCon2023/apptbook/internal/availability"
	"github.com/WolfCon2023/apptbook/internal/model"
	"github.com/WolfCon2023/apptbook/internal/storage"
)

// ScheduleHandler owns the admin surface: hosts, day rules, time-off and
// appointment-type definitions.
type ScheduleHandler struct {
	schedules ScheduleStore
	bookings  BookingStore
}

func NewScheduleHandler(schedules ScheduleStore, bookings BookingStore) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, bookings: bookings}
}

func hostIDParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("host_id"))
}

func (h *ScheduleHandler) CreateHost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	host, err := h.schedules.CreateHost(r.Context(), req.Name, req.Timezone)
	if err != nil {
		http.Error(w, "failed to create host", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": host.ID})
}

func (h *ScheduleHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hosts, err := h.schedules.ListHosts(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to list hosts", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(hosts)
}

func (h *ScheduleHandler) ListDayRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	if hostID == "" {
		http.Error(w, "host_id is required", http.StatusBadRequest)
		return
	}

	rules, err := h.schedules.ListDayRules(r.Context(), hostID)
	if err != nil {
		http.Error(w, "failed to list day rules", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rules)
}

func (h *ScheduleHandler) UpsertDayRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	if hostID == "" {
		http.Error(w, "host_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Weekday     int  `json:"weekday"`
		Enabled     bool `json:"enabled"`
		StartMinute int  `json:"start_minute"`
		EndMinute   int  `json:"end_minute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
		return
	}

	startMin := req.StartMinute
	endMin := req.EndMinute
	if !req.Enabled {
		startMin = 0
		endMin = 0
	} else if startMin < 0 || startMin >= 1440 || endMin <= 0 || endMin > 1440 || startMin >= endMin {
		http.Error(w, "invalid start_minute/end_minute", http.StatusBadRequest)
		return
	}

	err := h.schedules.UpsertDayRule(r.Context(), hostID, availability.DayRule{
		Weekday:     time.Weekday(req.Weekday),
		Enabled:     req.Enabled,
		StartMinute: startMin,
		EndMinute:   endMin,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to upsert day rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	if hostID == "" {
		http.Error(w, "host_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	timeOff, err := h.schedules.CreateTimeOff(r.Context(), hostID,
		availability.Interval{Start: start.UTC(), End: end.UTC()}, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to create time off", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": timeOff.ID})
}

func (h *ScheduleHandler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	if hostID == "" {
		http.Error(w, "host_id is required", http.StatusBadRequest)
		return
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		http.Error(w, "from and to are required (RFC3339)", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	items, err := h.schedules.ListTimeOff(r.Context(), hostID, from.UTC(), to.UTC(), 100)
	if err != nil {
		http.Error(w, "failed to list time off", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *ScheduleHandler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if hostID == "" || id == "" {
		http.Error(w, "host_id and id are required", http.StatusBadRequest)
		return
	}

	if err := h.schedules.DeleteTimeOff(r.Context(), hostID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "time off not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete time off", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) CreateAppointmentType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name                string   `json:"name"`
		DurationMinutes     int      `json:"duration_minutes"`
		BufferBeforeMinutes int      `json:"buffer_before_minutes"`
		BufferAfterMinutes  int      `json:"buffer_after_minutes"`
		SchedulingMode      string   `json:"scheduling_mode"`
		HostIDs             []string `json:"host_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.SchedulingMode = strings.TrimSpace(req.SchedulingMode)
	if req.SchedulingMode == "" {
		req.SchedulingMode = string(availability.ModeSingle)
	}
	if req.Name == "" || req.DurationMinutes <= 0 || req.DurationMinutes > 8*60 {
		http.Error(w, "name and duration_minutes (1-480) required", http.StatusBadRequest)
		return
	}
	if req.BufferBeforeMinutes < 0 || req.BufferAfterMinutes < 0 ||
		req.BufferBeforeMinutes > 240 || req.BufferAfterMinutes > 240 {
		http.Error(w, "buffers must be between 0 and 240 minutes", http.StatusBadRequest)
		return
	}
	switch availability.SchedulingMode(req.SchedulingMode) {
	case availability.ModeSingle, availability.ModeRoundRobin:
	default:
		http.Error(w, "scheduling_mode must be single or round_robin", http.StatusBadRequest)
		return
	}
	hostIDs := make([]string, 0, len(req.HostIDs))
	for _, id := range req.HostIDs {
		if id = strings.TrimSpace(id); id != "" {
			hostIDs = append(hostIDs, id)
		}
	}
	if len(hostIDs) == 0 {
		http.Error(w, "host_ids required", http.StatusBadRequest)
		return
	}

	created, err := h.schedules.CreateAppointmentType(r.Context(), model.AppointmentType{
		Name:                req.Name,
		DurationMinutes:     req.DurationMinutes,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		SchedulingMode:      req.SchedulingMode,
		HostIDs:             hostIDs,
	})
	if err != nil {
		http.Error(w, "failed to create appointment type", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": created.ID})
}

func (h *ScheduleHandler) ListAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	types, err := h.schedules.ListAppointmentTypes(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to list appointment types", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(types)
}

type freeWindowItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// FreeWindows reports the host's remaining open stretches for one local
// date: the day-rule window minus booked buffers and time-off.
func (h *ScheduleHandler) FreeWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := hostIDParam(r)
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if hostID == "" || dateStr == "" {
		http.Error(w, "host_id and date are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	rules, err := h.schedules.WeeklyRules(ctx, []string{hostID})
	if err != nil {
		http.Error(w, "failed to load host schedule", http.StatusInternalServerError)
		return
	}
	week, ok := rules[hostID]
	if !ok {
		http.Error(w, "host not found", http.StatusNotFound)
		return
	}

	loc, err := week.Location()
	if err != nil {
		writeFreeWindows(w, nil)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	dayWin, ok := week.DayWindow(day, loc)
	if !ok {
		writeFreeWindows(w, nil)
		return
	}

	busy, err := h.bookings.BusySpans(ctx, []string{hostID}, dayWin.Start, dayWin.End)
	if err != nil {
		http.Error(w, "failed to load bookings", http.StatusInternalServerError)
		return
	}
	timeOff, err := h.schedules.TimeOffSpans(ctx, []string{hostID}, dayWin.Start, dayWin.End)
	if err != nil {
		http.Error(w, "failed to load time off", http.StatusInternalServerError)
		return
	}
	blocks := append(busy[hostID], timeOff[hostID]...)

	writeFreeWindows(w, availability.Subtract(dayWin, blocks))
}

func writeFreeWindows(w http.ResponseWriter, windows []availability.Interval) {
	items := make([]freeWindowItem, 0, len(windows))
	for _, win := range windows {
		items = append(items, freeWindowItem{
			StartTime: win.Start.UTC().Format(time.RFC3339),
			EndTime:   win.End.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
