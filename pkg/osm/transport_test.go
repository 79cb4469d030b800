package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// recordedHooks collects hook calls made by the shared transport
type recordedHooks struct {
	mu         sync.Mutex
	requests   []string
	successes  []bool
	errors     []string
	rateLimits []string
}

func installHooks(t *testing.T) *recordedHooks {
	t.Helper()
	r := &recordedHooks{}
	SetMonitoringHooks(&MonitoringHooks{
		OnRequest: func(service, operation string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.requests = append(r.requests, service+"/"+operation)
		},
		OnResponse: func(service, operation string, d time.Duration, success bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes = append(r.successes, success)
		},
		OnRateLimit: func(service string, waited time.Duration) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rateLimits = append(r.rateLimits, service)
		},
		OnError: func(service, errorType string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, errorType)
		},
	})
	t.Cleanup(func() { SetMonitoringHooks(nil) })
	return r
}

// useFreshDirectory isolates host registrations and limits made by a test
func useFreshDirectory(t *testing.T) {
	t.Helper()
	saved := services
	services = newDirectory()
	t.Cleanup(func() { services = saved })
}

func send(t *testing.T, ctx context.Context, target, operation string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(WithOperation(ctx, operation), http.MethodGet, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := GetClient(ctx).Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	return resp, err
}

func TestServiceForHost(t *testing.T) {
	useFreshDirectory(t)
	RegisterServiceURL("self_hosted_osrm", "http://osrm.internal:5000/")
	RegisterServiceURL("ignored", "::not a url")

	tests := []struct {
		url  string
		want string
	}{
		{"https://nominatim.openstreetmap.org/search", tracing.ServiceNominatim},
		{"https://router.project-osrm.org/route/v1/driving/0,0;1,1", tracing.ServiceOSRM},
		{"https://api.tomtom.com/routing/1/calculateRoute/1,2:3,4/json", tracing.ServiceTomTom},
		{"https://api.openweathermap.org/data/2.5/weather", tracing.ServiceWeather},
		{"https://api.carbon-footprint.com/v1/fuel-consumption", tracing.ServiceEnrichment},
		{"http://osrm.internal:5000/route/v1/driving", "self_hosted_osrm"},
		{"https://example.com/api", UnknownService},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
		if got := services.serviceFor(req.URL.Host); got != tt.want {
			t.Errorf("%s: service = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestTransportReportsExchange(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	useFreshDirectory(t)
	RegisterServiceURL("test_service", server.URL)
	hooksSeen := installHooks(t)

	if _, err := send(t, context.Background(), server.URL+"/ok", "lookup"); err != nil {
		t.Fatal(err)
	}
	if _, err := send(t, context.Background(), server.URL+"/fail", "lookup"); err != nil {
		t.Fatal(err)
	}

	hooksSeen.mu.Lock()
	defer hooksSeen.mu.Unlock()
	if len(hooksSeen.requests) != 2 || hooksSeen.requests[0] != "test_service/lookup" {
		t.Errorf("requests = %v", hooksSeen.requests)
	}
	if len(hooksSeen.successes) != 2 || !hooksSeen.successes[0] || hooksSeen.successes[1] {
		t.Errorf("successes = %v", hooksSeen.successes)
	}
	if len(hooksSeen.errors) != 0 {
		t.Errorf("an HTTP status is not a transport error: %v", hooksSeen.errors)
	}
	if gotUA != GetUserAgent() {
		t.Errorf("User-Agent = %q, want %q", gotUA, GetUserAgent())
	}
}

func TestTransportKeepsCallerUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	req, _ := NewRequestWithUserAgent(context.Background(), http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "custom/1.0")
	resp, err := GetClient(context.Background()).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotUA != "custom/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestTransportNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	hooksSeen := installHooks(t)
	if _, err := send(t, context.Background(), target, "lookup"); err == nil {
		t.Fatal("expected a connection error")
	}

	hooksSeen.mu.Lock()
	defer hooksSeen.mu.Unlock()
	if len(hooksSeen.errors) != 1 || hooksSeen.errors[0] != "request_error" {
		t.Errorf("errors = %v", hooksSeen.errors)
	}
}

func TestTransportWaitsForServiceLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	useFreshDirectory(t)
	RegisterServiceURL("test_limited", server.URL)
	UpdateRateLimits("test_limited", 4, 1)
	hooksSeen := installHooks(t)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := send(t, context.Background(), server.URL, "lookup"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Error("second request did not wait for the limiter")
	}

	hooksSeen.mu.Lock()
	defer hooksSeen.mu.Unlock()
	if len(hooksSeen.rateLimits) != 1 || hooksSeen.rateLimits[0] != "test_limited" {
		t.Errorf("rate limit reports = %v", hooksSeen.rateLimits)
	}
}

func TestTransportLimitWaitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	useFreshDirectory(t)
	RegisterServiceURL("test_blocked", server.URL)
	UpdateRateLimits("test_blocked", 0.01, 1)
	hooksSeen := installHooks(t)

	if _, err := send(t, context.Background(), server.URL, "first"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := send(t, ctx, server.URL, "second"); err == nil {
		t.Fatal("expected the limiter wait to fail")
	}

	hooksSeen.mu.Lock()
	defer hooksSeen.mu.Unlock()
	if len(hooksSeen.errors) != 1 || hooksSeen.errors[0] != "rate_limit_wait_error" {
		t.Errorf("errors = %v", hooksSeen.errors)
	}
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Write([]byte("OK"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/status", false},
		{"/missing", false},
		{"/down", true},
	}
	for _, tt := range tests {
		err := CheckHealth(context.Background(), "test", server.URL+tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

func BenchmarkServiceFor(b *testing.B) {
	for i := 0; i < b.N; i++ {
		services.serviceFor("nominatim.openstreetmap.org")
	}
}
