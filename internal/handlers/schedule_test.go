package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WolfCon2023/apptbook/internal/availability"
)

func newTestScheduleHandler(f *fakeStore) *ScheduleHandler {
	return NewScheduleHandler(f, f)
}

func postJSON(t *testing.T, h http.HandlerFunc, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewBuffer(raw))
	rw := httptest.NewRecorder()
	h(rw, req)
	return rw
}

func putJSON(t *testing.T, h http.HandlerFunc, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, url, bytes.NewBuffer(raw))
	rw := httptest.NewRecorder()
	h(rw, req)
	return rw
}

func TestCreateHost_RejectsUnknownTimezone(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := postJSON(t, h.CreateHost, "/api/v1/admin/hosts", map[string]string{
		"name": "Ada", "timezone": "Mars/Olympus",
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateHost_DefaultsTimezoneToUTC(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := postJSON(t, h.CreateHost, "/api/v1/admin/hosts", map[string]string{"name": "Ada"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("expected an id in the response")
	}
}

func TestUpsertDayRule_RejectsBadWeekday(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	h := newTestScheduleHandler(f)

	rw := putJSON(t, h.UpsertDayRule, "/api/v1/admin/hosts/rules?host_id=h1", map[string]any{
		"weekday": 7, "enabled": true, "start_minute": 540, "end_minute": 1020,
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestUpsertDayRule_RejectsInvertedWindow(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	h := newTestScheduleHandler(f)

	rw := putJSON(t, h.UpsertDayRule, "/api/v1/admin/hosts/rules?host_id=h1", map[string]any{
		"weekday": 1, "enabled": true, "start_minute": 600, "end_minute": 540,
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestUpsertDayRule_DisabledDayClearsWindow(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	h := newTestScheduleHandler(f)

	rw := putJSON(t, h.UpsertDayRule, "/api/v1/admin/hosts/rules?host_id=h1", map[string]any{
		"weekday": 6, "enabled": false, "start_minute": 540, "end_minute": 1020,
	})
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if len(f.dayRules) != 1 {
		t.Fatalf("expected 1 stored rule, got %d", len(f.dayRules))
	}
	stored := f.dayRules[0]
	if stored.Enabled || stored.StartMinute != 0 || stored.EndMinute != 0 {
		t.Fatalf("disabled day should store a zero window, got %+v", stored)
	}
}

func TestUpsertDayRule_UnknownHostIs404(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := putJSON(t, h.UpsertDayRule, "/api/v1/admin/hosts/rules?host_id=missing", map[string]any{
		"weekday": 1, "enabled": true, "start_minute": 540, "end_minute": 1020,
	})
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestCreateTimeOff_RejectsInvertedSpan(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	h := newTestScheduleHandler(f)

	rw := postJSON(t, h.CreateTimeOff, "/api/v1/admin/time-off?host_id=h1", map[string]string{
		"start_time": "2026-01-05T13:00:00Z",
		"end_time":   "2026-01-05T12:00:00Z",
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateAppointmentType_RejectsUnknownMode(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := postJSON(t, h.CreateAppointmentType, "/api/v1/admin/appointment-types", map[string]any{
		"name": "intro call", "duration_minutes": 30, "scheduling_mode": "quantum", "host_ids": []string{"h1"},
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateAppointmentType_RequiresHosts(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := postJSON(t, h.CreateAppointmentType, "/api/v1/admin/appointment-types", map[string]any{
		"name": "intro call", "duration_minutes": 30,
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateAppointmentType_Creates(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	rw := postJSON(t, h.CreateAppointmentType, "/api/v1/admin/appointment-types", map[string]any{
		"name":             "team sync",
		"duration_minutes": 45,
		"scheduling_mode":  "round_robin",
		"host_ids":         []string{"h1", "h2"},
	})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "t-new" {
		t.Fatalf("unexpected id: %q", resp["id"])
	}
}

func TestFreeWindows_SubtractsBookingsAndTimeOff(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	f.busy["h1"] = []availability.Interval{{
		Start: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC),
	}}
	f.timeOff["h1"] = []availability.Interval{{
		Start: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC),
	}}
	h := newTestScheduleHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/hosts/free-windows?host_id=h1&date=2026-01-05", nil)
	rw := httptest.NewRecorder()
	h.FreeWindows(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var items []freeWindowItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := []freeWindowItem{
		{StartTime: "2026-01-05T09:00:00Z", EndTime: "2026-01-05T10:00:00Z"},
		{StartTime: "2026-01-05T10:30:00Z", EndTime: "2026-01-05T12:00:00Z"},
		{StartTime: "2026-01-05T13:00:00Z", EndTime: "2026-01-05T17:00:00Z"},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d windows, got %d: %+v", len(want), len(items), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("window %d: expected %+v, got %+v", i, want[i], items[i])
		}
	}
}

func TestFreeWindows_DisabledDayIsEmpty(t *testing.T) {
	f := newFakeStore()
	f.mondayNineToFive("t1", "h1")
	h := newTestScheduleHandler(f)

	// 2026-01-06 is a Tuesday with no rule.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/hosts/free-windows?host_id=h1&date=2026-01-06", nil)
	rw := httptest.NewRecorder()
	h.FreeWindows(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var items []freeWindowItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no windows, got %+v", items)
	}
}

func TestFreeWindows_UnknownHostIs404(t *testing.T) {
	h := newTestScheduleHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/hosts/free-windows?host_id=missing&date=2026-01-05", nil)
	rw := httptest.NewRecorder()
	h.FreeWindows(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}
