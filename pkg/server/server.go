// Package server provides the MCP server and the JSON HTTP surface for ecoroute.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/monitoring"
	"github.com/NERVsystems/ecoroute/pkg/planner"
	"github.com/NERVsystems/ecoroute/pkg/tools"
	"github.com/NERVsystems/ecoroute/pkg/version"
)

const (
	// ServerName is the name of the MCP server
	ServerName = "ecoroute"

	// MCPPath is where the streamable HTTP transport is mounted
	MCPPath = "/mcp"

	// DefaultMaxRequestSize bounds HTTP request bodies
	DefaultMaxRequestSize = 1 << 20
)

// Server wraps the MCP server with the ecoroute tools registered.
type Server struct {
	srv          *mcpserver.MCPServer
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
	mu           sync.Mutex
	once         sync.Once
	ctxCancel    context.CancelFunc
	ctxGoroutine sync.Once
}

// NewServer creates an MCP server exposing every tool in registry.
func NewServer(registry *tools.Registry, logger *slog.Logger) (*Server, error) {
	if registry == nil {
		return nil, errors.New("server: tool registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing MCP server",
		"name", ServerName,
		"version", version.BuildVersion,
		"tools", registry.GetToolNames())

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterTools(srv)

	return &Server{
		srv:    srv,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Run serves MCP over stdin/stdout and blocks until the server stops.
func (s *Server) Run() error {
	return s.run(context.Background())
}

func (s *Server) run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		stdio := mcpserver.NewStdioServer(s.srv)
		err := stdio.Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			s.logger.Error("stdio server error", "error", err)
		}
		s.Shutdown()
	}()

	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	<-s.doneCh
	return nil
}

// RunWithContext serves MCP over stdio until ctx is canceled or input ends.
func (s *Server) RunWithContext(ctx context.Context) error {
	var derived context.Context
	s.ctxGoroutine.Do(func() {
		derived, s.ctxCancel = context.WithCancel(ctx)

		go func() {
			select {
			case <-derived.Done():
				s.Shutdown()
			case <-s.stopCh:
			}
		}()
	})
	if derived == nil {
		derived = ctx
	}

	return s.run(derived)
}

// Shutdown initiates a graceful shutdown. It does not block.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.once.Do(func() {
		close(s.stopCh)
	})

	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until the server has fully shut down.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server for the HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// HandlerOptions configures the JSON HTTP surface.
type HandlerOptions struct {
	Estimator *eco.Estimator
	Planner   tools.TripPlanner
	Health    *monitoring.HealthChecker
	// MCP, when set, is mounted at MCPPath
	MCP    http.Handler
	Logger *slog.Logger
}

// Handler serves the JSON HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	estimator *eco.Estimator
	planner   tools.TripPlanner
	health    *monitoring.HealthChecker
	mux       *http.ServeMux
}

// NewHandler creates the HTTP handler. An estimator is required.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Estimator == nil {
		return nil, errors.New("server: estimator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		logger:    opts.Logger,
		estimator: opts.Estimator,
		planner:   opts.Planner,
		health:    opts.Health,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("POST /estimate", h.handleEstimate)
	h.mux.HandleFunc("POST /plan", h.handlePlan)
	if h.health != nil {
		h.mux.Handle("GET /ready", h.health.ReadinessHandler())
		h.mux.Handle("GET /live", h.health.LivenessHandler())
	}
	if opts.MCP != nil {
		h.mux.Handle(MCPPath, opts.MCP)
	}
	return h, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		h.health.HealthHandler()(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// estimateRequest is the POST /estimate body
type estimateRequest struct {
	DistanceKm          *float64 `json:"distance_km"`
	VehicleType         string   `json:"vehicle_type"`
	TrafficDelaySeconds float64  `json:"traffic_delay_seconds"`
	WeatherCondition    string   `json:"weather_condition"`
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var body estimateRequest
	if !h.decode(w, r, &body) {
		return
	}
	if body.DistanceKm == nil {
		h.fail(w, r, core.NewValidationError(core.ErrMissingParameter, "distance_km is required"))
		return
	}
	vehicle, err := eco.ParseVehicleClass(body.VehicleType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	weather := strings.TrimSpace(body.WeatherCondition)
	if weather == "" {
		weather = tools.DefaultWeatherCondition
	}

	est, err := h.estimator.Estimate(r.Context(), eco.TripRequest{
		DistanceKm:          *body.DistanceKm,
		Vehicle:             vehicle,
		TrafficDelaySeconds: body.TrafficDelaySeconds,
		WeatherCondition:    weather,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tools.EstimateOutput{TripEstimate: est, EcoScore: est.EcoScore()})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	if h.planner == nil {
		writeError(w, http.StatusNotImplemented,
			core.NewError(core.ErrServiceUnavailable, "trip planning is not configured"))
		return
	}

	var body tools.PlanInput
	if !h.decode(w, r, &body) {
		return
	}
	vehicle, err := eco.ParseVehicleClass(body.VehicleType)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.planner.Plan(r.Context(), planner.PlanRequest{
		From:    body.From,
		To:      body.To,
		Vehicle: vehicle,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode reads a JSON body into v, writing the error response on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				core.NewError(core.ErrInvalidInput, "request body too large"))
			return false
		}
		h.logger.Debug("invalid request body",
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusBadRequest,
			core.NewError(core.ErrInvalidInput, "request body must be a JSON object").
				WithGuidance("Check field names and types"))
		return false
	}
	return true
}

// fail maps err onto an HTTP status and writes it
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mcpErr := tools.AsMCPError(err)
	status := core.ErrorCode(mcpErr.Code).HTTPStatus()
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"code", mcpErr.Code,
		"error", err)
	writeError(w, status, mcpErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err *core.MCPError) {
	writeJSON(w, status, map[string]*core.MCPError{"error": err})
}

// HTTPOptions configures the HTTP listener.
type HTTPOptions struct {
	Addr           string
	AuthToken      string
	RateLimit      float64
	RateBurst      int
	MaxRequestSize int64
	Logger         *slog.Logger
}

// HTTPServer is the HTTP listener with the middleware chain applied.
type HTTPServer struct {
	srv     *http.Server
	limiter *ClientLimiter
	logger  *slog.Logger
}

// NewHTTPServer wraps handler with logging, tracing, security headers,
// size limits, rate limiting and optional bearer authentication.
func NewHTTPServer(handler http.Handler, opts HTTPOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRequestSize <= 0 {
		opts.MaxRequestSize = DefaultMaxRequestSize
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	limiter := NewClientLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	chained := Chain(handler,
		LoggingMiddleware(opts.Logger),
		TracingMiddleware(),
		SecurityHeaders,
		BodyLimit(opts.MaxRequestSize),
		limiter.Middleware,
		AuthMiddleware(opts.AuthToken, opts.Logger),
	)

	return &HTTPServer{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           chained,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		limiter: limiter,
		logger:  opts.Logger,
	}
}

// Handler returns the fully wrapped handler
func (s *HTTPServer) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until the listener fails or is shut down.
func (s *HTTPServer) ListenAndServe() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.srv.Shutdown(ctx)
}
