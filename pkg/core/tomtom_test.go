package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NERVsystems/ecoroute/pkg/geo"
)

const mockTomTomResponse = `{
  "routes": [{
    "summary": {"lengthInMeters": 25400, "travelTimeInSeconds": 2700, "trafficDelayInSeconds": 420},
    "legs": [{"points": [{"latitude": 38.5, "longitude": -120.2}, {"latitude": 40.7, "longitude": -120.95}]}]
  }]
}`

func TestNewTomTomRouterRequiresKey(t *testing.T) {
	_, err := NewTomTomRouter(TomTomOptions{APIKey: "  "})
	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrMissingParameter) {
		t.Fatalf("expected MISSING_PARAMETER, got %v", err)
	}
}

func TestTomTomRoute(t *testing.T) {
	var gotPath, gotKey, gotTraffic string
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotTraffic = r.URL.Query().Get("traffic")
		w.Write([]byte(mockTomTomResponse))
	}))
	defer server.Close()

	router, err := NewTomTomRouter(TomTomOptions{
		BaseURL:      server.URL,
		APIKey:       "test-tomtom-key",
		Client:       server.Client(),
		RetryOptions: fastRetry,
	})
	if err != nil {
		t.Fatal(err)
	}

	from := geo.Location{Latitude: 12.9716, Longitude: 77.5946}
	to := geo.Location{Latitude: 13.0827, Longitude: 80.2707}

	route, err := router.Route(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/routing/1/calculateRoute/12.971600,77.594600:13.082700,80.270700/json" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "test-tomtom-key" || gotTraffic != "true" {
		t.Errorf("key=%q traffic=%q", gotKey, gotTraffic)
	}
	if route.DistanceMeters != 25400 || route.DurationSeconds != 2700 || route.TrafficDelaySeconds != 420 {
		t.Errorf("unexpected route %+v", route)
	}
	if route.Provider != "tomtom" {
		t.Errorf("provider = %q", route.Provider)
	}
	if route.Polyline != "_p~iF~ps|U_ulLnnqC" {
		t.Errorf("polyline = %q", route.Polyline)
	}

	if _, err := router.Route(context.Background(), from, to); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected cached second call, got %d requests", calls)
	}
}

func TestTomTomRouteDetailedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detailedError": {"code": "MAP_MATCHING_FAILURE", "message": "Point too far from road"}}`))
	}))
	defer server.Close()

	router, _ := NewTomTomRouter(TomTomOptions{BaseURL: server.URL, APIKey: "k", Client: server.Client(), RetryOptions: fastRetry})
	_, err := router.Route(context.Background(), geo.Location{}, geo.Location{Latitude: 1, Longitude: 1})

	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrNoResults) {
		t.Fatalf("expected NO_RESULTS, got %v", err)
	}
	if !strings.Contains(mcpErr.Message, "MAP_MATCHING_FAILURE") {
		t.Errorf("message = %q", mcpErr.Message)
	}
}
