package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	buildinfo "github.com/NERVsystems/ecoroute/pkg/version"
)

// Connection states reported by ConnectionMonitor
const (
	StatusPending      = "pending"
	StatusConnected    = "connected"
	StatusDegraded     = "degraded"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Overall service states
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Capabilities a collaborator can gate. The estimator runs offline, so
// CapabilityEstimate is always available while the process is up.
const (
	CapabilityEstimate    = "estimate"
	CapabilityPlan        = "plan"
	CapabilityLiveWeather = "live_weather"
	CapabilityEnrichment  = "enrichment"
)

// SlowCheckThreshold marks a successful probe slower than this as degraded
const SlowCheckThreshold = 3 * time.Second

// TransportInfo describes how the server is exposed
type TransportInfo struct {
	Type     string `json:"type"` // "stdio", "http" or "stdio+http"
	HTTPAddr string `json:"http_addr,omitempty"`
}

// ServiceHealth is the body of the health endpoint
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Capabilities  map[string]bool       `json:"capabilities"`
	Connections   map[string]ConnStatus `json:"connections"`
	Runtime       RuntimeStats          `json:"runtime"`
	Transport     *TransportInfo        `json:"transport,omitempty"`
}

// ConnStatus is the last observed state of a collaborator
type ConnStatus struct {
	Capability  string    `json:"capability,omitempty"`
	Status      string    `json:"status"`
	Latency     int64     `json:"latency_ms,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

func (c ConnStatus) down() bool {
	return c.Status == StatusError || c.Status == StatusDisconnected
}

// RuntimeStats is a snapshot of process resource use
type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	GCRuns        uint32 `json:"gc_runs"`
}

// HealthChecker tracks which collaborators are reachable and derives the
// capabilities the service can currently offer.
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]*ConnStatus
	transport   *TransportInfo
	draining    bool
}

// NewHealthChecker creates a health checker and publishes the build info
// gauge. Go runtime series come from the default registry's collectors.
func NewHealthChecker(serviceName, version string) *HealthChecker {
	info := buildinfo.Info()
	BuildInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)

	return &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]*ConnStatus),
	}
}

// SetTransport records how the server is exposed
func (h *HealthChecker) SetTransport(info TransportInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transport = &info
}

// Track registers a collaborator as serving capability. It reports as
// pending until the first UpdateConnection.
func (h *HealthChecker) Track(name, capability string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.connections[name]; ok {
		c.Capability = capability
		return
	}
	h.connections[name] = &ConnStatus{Capability: capability, Status: StatusPending}
}

// UpdateConnection records the outcome of a probe
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.connections[name]
	if !ok {
		c = &ConnStatus{}
		h.connections[name] = c
	}
	c.Status = status
	c.Latency = latencyMs
	c.LastChecked = time.Now()
	c.LastError = ""
	if err != nil {
		c.LastError = err.Error()
	}
}

// RemoveConnection stops reporting a collaborator
func (h *HealthChecker) RemoveConnection(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, name)
}

// GetHealth returns the current health snapshot.
//
// A capability is lost when every collaborator tracked for it is down.
// Losing a capability or having a slow collaborator degrades the service;
// it only becomes unhealthy once Shutdown has been called.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connections := make(map[string]ConnStatus, len(h.connections))
	served := map[string]bool{CapabilityEstimate: true}
	seen := map[string]bool{}
	degraded := false

	for name, c := range h.connections {
		connections[name] = *c
		if c.Status == StatusDegraded || c.down() {
			degraded = true
		}
		if c.Capability == "" {
			continue
		}
		seen[c.Capability] = true
		if !c.down() {
			served[c.Capability] = true
		}
	}

	capabilities := map[string]bool{CapabilityEstimate: true}
	for capability := range seen {
		capabilities[capability] = served[capability]
	}

	status := HealthHealthy
	switch {
	case h.draining:
		status = HealthUnhealthy
	case degraded:
		status = HealthDegraded
	}

	var transport *TransportInfo
	if h.transport != nil {
		t := *h.transport
		transport = &t
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Capabilities:  capabilities,
		Connections:   connections,
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: m.Alloc / 1024 / 1024,
			GCRuns:        m.NumGC,
		},
		Transport: transport,
	}
}

// LostCapabilities lists capabilities that are currently unavailable
func (s ServiceHealth) LostCapabilities() []string {
	var lost []string
	for name, ok := range s.Capabilities {
		if !ok {
			lost = append(lost, name)
		}
	}
	sort.Strings(lost)
	return lost
}

// HealthHandler serves the full snapshot; 503 once draining
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		code := http.StatusOK
		if health.Status == HealthUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, health)
	}
}

// ReadinessHandler reports whether the service should receive traffic
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		ready := health.Status != HealthUnhealthy
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, map[string]any{
			"ready":        ready,
			"status":       health.Status,
			"capabilities": health.Capabilities,
		})
	}
}

// LivenessHandler always answers while the process can serve HTTP
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealthJSON(w, http.StatusOK, map[string]any{
			"alive":          true,
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		})
	}
}

func writeHealthJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown marks the service as draining so health and readiness fail.
// Safe to call more than once.
func (h *HealthChecker) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draining = true
}

// CheckFunc probes a collaborator
type CheckFunc func(ctx context.Context) error

// ConnectionMonitor periodically probes one collaborator
type ConnectionMonitor struct {
	name     string
	hc       *HealthChecker
	check    CheckFunc
	interval time.Duration
	slow     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionMonitor creates a monitor; nothing runs until Start
func NewConnectionMonitor(name string, hc *HealthChecker, checkFunc CheckFunc, interval time.Duration) *ConnectionMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionMonitor{
		name:     name,
		hc:       hc,
		check:    checkFunc,
		interval: interval,
		slow:     SlowCheckThreshold,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start probes immediately and then every interval
func (cm *ConnectionMonitor) Start() {
	go func() {
		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()
		for {
			cm.probe()
			select {
			case <-cm.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends probing
func (cm *ConnectionMonitor) Stop() {
	cm.cancel()
}

func (cm *ConnectionMonitor) probe() {
	start := time.Now()
	err := cm.check(cm.ctx)
	elapsed := time.Since(start)

	// an interrupted probe says nothing about the collaborator
	if cm.ctx.Err() != nil {
		return
	}

	status := StatusConnected
	switch {
	case err != nil:
		status = StatusError
	case elapsed > cm.slow:
		status = StatusDegraded
	}
	cm.hc.UpdateConnection(cm.name, status, elapsed.Milliseconds(), err)
}
