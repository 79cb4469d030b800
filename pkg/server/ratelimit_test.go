package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestClientLimiterMiddleware(t *testing.T) {
	l := NewClientLimiter(rate.Every(time.Hour), 2)
	t.Cleanup(l.Stop)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/estimate", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:5000"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d within burst: status %d", i+1, rec.Code)
		}
	}

	rec := send("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After")
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error.Code != "RATE_LIMIT" {
		t.Errorf("body = %+v, err = %v", body, err)
	}

	// a different client has its own bucket
	if rec := send("10.0.0.2:5000"); rec.Code != http.StatusNoContent {
		t.Errorf("second client: status %d", rec.Code)
	}
}

func TestClientLimiterBoundsTable(t *testing.T) {
	l := newClientLimiter(rate.Every(time.Hour), 1, 2, time.Hour)
	t.Cleanup(l.Stop)

	l.Allow("a")
	l.Allow("b")
	l.Allow("a") // refresh a so b is least recent
	l.Allow("c")

	if l.Tracked() != 2 {
		t.Fatalf("tracked = %d, want 2", l.Tracked())
	}
	// a survived and keeps its spent bucket
	if l.Allow("a") {
		t.Error("a should still be limited")
	}
	// b was dropped, so it starts with a full bucket again
	if !l.Allow("b") {
		t.Error("evicted client should get a fresh bucket")
	}
}

func TestClientLimiterForgetsIdleClients(t *testing.T) {
	l := newClientLimiter(rate.Every(time.Hour), 1, 10, 20*time.Millisecond)
	t.Cleanup(l.Stop)

	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("burst of one not enforced")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Allow("a") {
		t.Error("idle client kept its empty bucket")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"peer", nil, "192.0.2.7:4411", "192.0.2.7"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "10.0.0.1:80", "198.51.100.9"},
		{"garbage forwarded", map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "198.51.100.9"}, "10.0.0.1:80", "198.51.100.9"},
		{"ipv6 peer", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", nil, "unix-socket", "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
