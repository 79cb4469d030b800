package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func newTestChecker(t *testing.T) *HealthChecker {
	t.Helper()
	hc := NewHealthChecker("ecoroute-test", "1.0.0")
	t.Cleanup(hc.Shutdown)
	return hc
}

func TestHealthStatusAndCapabilities(t *testing.T) {
	type update struct {
		name   string
		status string
	}

	tests := []struct {
		name     string
		updates  []update
		want     string
		wantCaps map[string]bool
		wantLost []string
	}{
		{
			name:     "nothing tracked",
			want:     HealthHealthy,
			wantCaps: map[string]bool{CapabilityEstimate: true},
		},
		{
			name:     "pending probes",
			want:     HealthHealthy,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: true, CapabilityLiveWeather: true},
		},
		{
			name:     "all connected",
			updates:  []update{{"nominatim", StatusConnected}, {"osrm", StatusConnected}, {"openweathermap", StatusConnected}},
			want:     HealthHealthy,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: true, CapabilityLiveWeather: true},
		},
		{
			name:     "weather down",
			updates:  []update{{"nominatim", StatusConnected}, {"osrm", StatusConnected}, {"openweathermap", StatusError}},
			want:     HealthDegraded,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: true, CapabilityLiveWeather: false},
			wantLost: []string{CapabilityLiveWeather},
		},
		{
			name:     "one planning collaborator down keeps planning",
			updates:  []update{{"nominatim", StatusError}, {"osrm", StatusConnected}},
			want:     HealthDegraded,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: true, CapabilityLiveWeather: true},
		},
		{
			name:     "all planning collaborators down",
			updates:  []update{{"nominatim", StatusDisconnected}, {"osrm", StatusError}},
			want:     HealthDegraded,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: false, CapabilityLiveWeather: true},
			wantLost: []string{CapabilityPlan},
		},
		{
			name:     "slow collaborator",
			updates:  []update{{"osrm", StatusDegraded}},
			want:     HealthDegraded,
			wantCaps: map[string]bool{CapabilityEstimate: true, CapabilityPlan: true, CapabilityLiveWeather: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := newTestChecker(t)
			if tt.name != "nothing tracked" {
				hc.Track("nominatim", CapabilityPlan)
				hc.Track("osrm", CapabilityPlan)
				hc.Track("openweathermap", CapabilityLiveWeather)
			}
			for _, u := range tt.updates {
				var err error
				if u.status == StatusError {
					err = errors.New("probe failed")
				}
				hc.UpdateConnection(u.name, u.status, 12, err)
			}

			health := hc.GetHealth()
			if health.Status != tt.want {
				t.Errorf("status = %q, want %q", health.Status, tt.want)
			}
			if !reflect.DeepEqual(health.Capabilities, tt.wantCaps) {
				t.Errorf("capabilities = %v, want %v", health.Capabilities, tt.wantCaps)
			}
			if lost := health.LostCapabilities(); !reflect.DeepEqual(lost, tt.wantLost) {
				t.Errorf("lost = %v, want %v", lost, tt.wantLost)
			}
		})
	}
}

func TestUpdateConnectionKeepsCapability(t *testing.T) {
	hc := newTestChecker(t)
	hc.Track("carbon_footprint", CapabilityEnrichment)

	hc.UpdateConnection("carbon_footprint", StatusError, 40, errors.New("timeout"))
	conn := hc.GetHealth().Connections["carbon_footprint"]
	if conn.Capability != CapabilityEnrichment || conn.LastError != "timeout" || conn.LastChecked.IsZero() {
		t.Errorf("unexpected connection %+v", conn)
	}

	// recovery clears the error
	hc.UpdateConnection("carbon_footprint", StatusConnected, 20, nil)
	conn = hc.GetHealth().Connections["carbon_footprint"]
	if conn.Status != StatusConnected || conn.LastError != "" || conn.Latency != 20 {
		t.Errorf("unexpected connection after recovery %+v", conn)
	}

	hc.RemoveConnection("carbon_footprint")
	if _, ok := hc.GetHealth().Capabilities[CapabilityEnrichment]; ok {
		t.Error("removed collaborator still reported")
	}
}

func TestHealthSnapshotFields(t *testing.T) {
	hc := newTestChecker(t)
	hc.SetTransport(TransportInfo{Type: "stdio+http", HTTPAddr: ":7082"})

	health := hc.GetHealth()
	if health.Service != "ecoroute-test" || health.Version != "1.0.0" {
		t.Errorf("identity = %s %s", health.Service, health.Version)
	}
	if health.StartTime.IsZero() || health.UptimeSeconds < 0 {
		t.Error("start time not recorded")
	}
	if health.Runtime.Goroutines == 0 {
		t.Error("runtime stats missing")
	}
	if health.Transport == nil || health.Transport.HTTPAddr != ":7082" {
		t.Errorf("transport = %+v", health.Transport)
	}
}

func TestHandlersWhileServing(t *testing.T) {
	hc := newTestChecker(t)
	hc.Track("osrm", CapabilityPlan)
	hc.UpdateConnection("osrm", StatusError, 0, errors.New("down"))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, body map[string]any)
	}{
		{"health", hc.HealthHandler(), func(t *testing.T, body map[string]any) {
			if body["status"] != HealthDegraded {
				t.Errorf("status = %v", body["status"])
			}
		}},
		{"ready", hc.ReadinessHandler(), func(t *testing.T, body map[string]any) {
			caps, _ := body["capabilities"].(map[string]any)
			if body["ready"] != true || caps[CapabilityPlan] != false {
				t.Errorf("body = %v", body)
			}
		}},
		{"live", hc.LivenessHandler(), func(t *testing.T, body map[string]any) {
			if body["alive"] != true {
				t.Errorf("body = %v", body)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/"+tt.name, nil))

			if rec.Code != http.StatusOK {
				t.Errorf("status code = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %s", ct)
			}
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, body)
		})
	}
}

func TestHandlersWhileDraining(t *testing.T) {
	hc := NewHealthChecker("ecoroute-test", "1.0.0")
	hc.Shutdown()
	hc.Shutdown()

	want := map[string]int{
		"health": http.StatusServiceUnavailable,
		"ready":  http.StatusServiceUnavailable,
		"live":   http.StatusOK,
	}
	handlers := map[string]http.HandlerFunc{
		"health": hc.HealthHandler(),
		"ready":  hc.ReadinessHandler(),
		"live":   hc.LivenessHandler(),
	}
	for name, h := range handlers {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/"+name, nil))
		if rec.Code != want[name] {
			t.Errorf("%s: status code = %d, want %d", name, rec.Code, want[name])
		}
	}
}

func waitForStatus(t *testing.T, hc *HealthChecker, name, want string) ConnStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, ok := hc.GetHealth().Connections[name]; ok && conn.Status == want {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never reached %s: %+v", name, want, hc.GetHealth().Connections[name])
	return ConnStatus{}
}

func TestConnectionMonitor(t *testing.T) {
	tests := []struct {
		name  string
		check CheckFunc
		slow  time.Duration
		want  string
	}{
		{"connected", func(context.Context) error { return nil }, time.Second, StatusConnected},
		{"error", func(context.Context) error { return errors.New("connection refused") }, time.Second, StatusError},
		{"slow", func(context.Context) error { time.Sleep(20 * time.Millisecond); return nil }, time.Millisecond, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := newTestChecker(t)
			hc.Track("osrm", CapabilityPlan)

			cm := NewConnectionMonitor("osrm", hc, tt.check, time.Hour)
			cm.slow = tt.slow
			cm.Start()
			defer cm.Stop()

			conn := waitForStatus(t, hc, "osrm", tt.want)
			if tt.want == StatusError && conn.LastError != "connection refused" {
				t.Errorf("last error = %q", conn.LastError)
			}
		})
	}
}

func TestConnectionMonitorRepeatsAndStops(t *testing.T) {
	hc := newTestChecker(t)

	var calls atomic.Int32
	cm := NewConnectionMonitor("nominatim", hc, func(context.Context) error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond)
	cm.Start()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected repeated probes, got %d", calls.Load())
	}

	cm.Stop()
	time.Sleep(30 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != stopped {
		t.Errorf("probes continued after Stop: %d -> %d", stopped, calls.Load())
	}
}

func TestInterruptedProbeNotRecorded(t *testing.T) {
	hc := newTestChecker(t)
	hc.Track("openweathermap", CapabilityLiveWeather)

	started := make(chan struct{})
	cm := NewConnectionMonitor("openweathermap", hc, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, time.Hour)
	cm.Start()
	<-started
	cm.Stop()
	time.Sleep(20 * time.Millisecond)

	if got := hc.GetHealth().Connections["openweathermap"].Status; got != StatusPending {
		t.Errorf("status = %q, want %q", got, StatusPending)
	}
}
