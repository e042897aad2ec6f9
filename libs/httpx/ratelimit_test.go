package httpx

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowEnforcesLimitPerWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1", now) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1", now) {
		t.Fatal("fourth request should be rejected")
	}
	if !rl.allow("10.0.0.2", now) {
		t.Fatal("different client should have its own budget")
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Now()

	if !rl.allow("10.0.0.1", now) {
		t.Fatal("first request should be allowed")
	}
	if rl.allow("10.0.0.1", now.Add(30*time.Second)) {
		t.Fatal("second request inside the window should be rejected")
	}
	if !rl.allow("10.0.0.1", now.Add(time.Minute)) {
		t.Fatal("request in the next window should be allowed")
	}
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.9:4312"
	if got := clientKey(r); got != "192.0.2.9" {
		t.Fatalf("expected remote host, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientKey(r); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
