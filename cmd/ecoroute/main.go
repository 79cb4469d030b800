package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/ecoroute/pkg/config"
	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/enrichment"
	"github.com/NERVsystems/ecoroute/pkg/monitoring"
	"github.com/NERVsystems/ecoroute/pkg/osm"
	"github.com/NERVsystems/ecoroute/pkg/planner"
	"github.com/NERVsystems/ecoroute/pkg/registration"
	"github.com/NERVsystems/ecoroute/pkg/server"
	"github.com/NERVsystems/ecoroute/pkg/tools"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
	ver "github.com/NERVsystems/ecoroute/pkg/version"
	"github.com/NERVsystems/ecoroute/pkg/weather"
)

var (
	showVersionFlag bool
	debug           bool
	userAgent       string

	// HTTP transport flags
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpAuthToken string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Registration flags
	registryURL string
	serviceURL  string

	// Rate limits for each service
	nominatimRPS   float64
	nominatimBurst int
	osrmRPS        float64
	osrmBurst      int
	weatherRPS     float64
	weatherBurst   int
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&userAgent, "user-agent", osm.DefaultUserAgent, "User-Agent string for outbound API requests")

	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable the HTTP surface (JSON endpoints and streamable MCP) in addition to stdio")
	flag.BoolVar(&httpOnly, "http-only", false, "Run HTTP only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP server address (defaults to ECOROUTE_HTTP_ADDR or :7082)")
	flag.StringVar(&httpAuthToken, "http-auth-token", "", "Bearer token required on HTTP requests")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health checks")
	flag.StringVar(&monitoringAddr, "monitoring-addr", "", "Monitoring server address (defaults to ECOROUTE_MONITORING_ADDR or :9090)")

	flag.StringVar(&registryURL, "registry-url", "", "Service registry to announce this instance to (disabled when empty)")
	flag.StringVar(&serviceURL, "service-url", "", "External URL advertised to the registry")

	flag.Float64Var(&nominatimRPS, "nominatim-rps", 1.0, "Nominatim rate limit in requests per second")
	flag.IntVar(&nominatimBurst, "nominatim-burst", 1, "Nominatim rate limit burst size")
	flag.Float64Var(&osrmRPS, "osrm-rps", 1.0, "OSRM rate limit in requests per second")
	flag.IntVar(&osrmBurst, "osrm-burst", 1, "OSRM rate limit burst size")
	flag.Float64Var(&weatherRPS, "weather-rps", 1.0, "OpenWeatherMap rate limit in requests per second")
	flag.IntVar(&weatherBurst, "weather-burst", 1, "OpenWeatherMap rate limit burst size")
}

func main() {
	flag.Parse()

	if showVersionFlag {
		showVersion()
		return
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("ecoroute exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	if httpOnly && !enableHTTP {
		return errors.New("--http-only requires --enable-http")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if httpAddr == "" {
		httpAddr = cfg.Server.HTTPAddr
	}
	if monitoringAddr == "" {
		monitoringAddr = cfg.Server.MonitoringAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Environment: cfg.Tracing.Environment,
		Version:     ver.BuildVersion,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if cfg.Tracing.Endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled",
				"endpoint", cfg.Tracing.Endpoint,
				"sample_ratio", cfg.Tracing.SampleRatio)
		}
	}

	configureOutbound(cfg)

	logger.Info("starting ecoroute",
		"version", ver.BuildVersion,
		"log_level", levelName(),
		"user_agent", osm.GetUserAgent(),
		"enrichment_enabled", cfg.Enrichment.Enabled(),
		"traffic_routing", cfg.Routing.TomTomAPIKey != "",
		"live_weather", cfg.Weather.APIKey != "",
		"currency", cfg.Prices.Currency,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring)

	var healthChecker *monitoring.HealthChecker
	if enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()

		osm.SetMonitoringHooks(&osm.MonitoringHooks{
			OnRequest: func(service, operation string) {
				logger.Debug("external request", "service", service, "operation", operation)
			},
			OnResponse:  monitoring.RecordExternalServiceRequest,
			OnRateLimit: monitoring.RecordRateLimitWait,
			OnError:     monitoring.RecordError,
		})
	}

	estimator, err := newEstimator(cfg, logger)
	if err != nil {
		return err
	}

	geocoderOpts := osm.DefaultGeocoderOptions()
	geocoderOpts.BaseURL = cfg.Routing.NominatimURL
	geocoderOpts.Logger = logger
	geocoderOpts.OnCache = monitoring.CacheRecorder("geocode")
	geocoder := osm.NewGeocoder(geocoderOpts)
	defer geocoder.Close()

	router, err := newRouter(ctx, cfg)
	if err != nil {
		return err
	}

	weatherOpts := weather.DefaultOptions()
	weatherOpts.BaseURL = cfg.Weather.BaseURL
	weatherOpts.APIKey = cfg.Weather.APIKey
	weatherOpts.CacheTTL = cfg.Weather.CacheTTL
	weatherOpts.Logger = logger
	weatherOpts.OnCache = monitoring.CacheRecorder("weather")
	weatherClient := weather.NewClient(weatherOpts)
	defer weatherClient.Close()

	var weatherSource planner.WeatherSource
	if cfg.Weather.APIKey != "" {
		weatherSource = weatherClient
	}

	tripPlanner, err := planner.New(planner.Options{
		Geocoder:  geocoder,
		Router:    router,
		Weather:   weatherSource,
		Estimator: estimator,
		Logger:    logger,
		OnWeatherFallback: func(err error) {
			monitoring.RecordWeatherFallback()
		},
	})
	if err != nil {
		return fmt.Errorf("creating planner: %w", err)
	}

	registry := tools.NewRegistry(logger, estimator, tripPlanner)
	s, err := server.NewServer(registry, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if healthChecker != nil {
		startExternalServiceMonitoring(ctx, healthChecker, cfg, logger)
		go serveMetrics(ctx, logger)
	}

	if registryURL != "" {
		regClient := newRegistration(registry, logger)
		if err := regClient.Start(ctx); err != nil {
			logger.Warn("service registration disabled", "error", err)
		} else {
			defer regClient.Stop()
		}
	}

	if enableHTTP {
		startHTTP(ctx, s.GetMCPServer(), estimator, tripPlanner, healthChecker, cfg, logger)
	}

	switch {
	case !enableHTTP:
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		if err := s.RunWithContext(ctx); err != nil {
			return err
		}
	case httpOnly:
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
		<-ctx.Done()
		logger.Info("shutdown signal received")
	default:
		go func() {
			logger.Info("transport_enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()
		logger.Info("server_ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
		logger.Info("shutdown signal received")
	}

	logger.Info("server stopped")
	return nil
}

func levelName() string {
	if debug {
		return slog.LevelDebug.String()
	}
	return slog.LevelInfo.String()
}

// configureOutbound points the shared client at the configured endpoints
func configureOutbound(cfg *config.Config) {
	if userAgent != "" {
		osm.SetUserAgent(userAgent)
	}

	osm.RegisterServiceURL(tracing.ServiceNominatim, cfg.Routing.NominatimURL)
	osm.RegisterServiceURL(tracing.ServiceOSRM, cfg.Routing.OSRMBaseURL)
	osm.RegisterServiceURL(tracing.ServiceTomTom, cfg.Routing.TomTomBaseURL)
	osm.RegisterServiceURL(tracing.ServiceWeather, cfg.Weather.BaseURL)
	osm.RegisterServiceURL(tracing.ServiceEnrichment, cfg.Enrichment.BaseURL)

	osm.UpdateRateLimits(tracing.ServiceNominatim, nominatimRPS, nominatimBurst)
	osm.UpdateRateLimits(tracing.ServiceOSRM, osrmRPS, osrmBurst)
	osm.UpdateRateLimits(tracing.ServiceWeather, weatherRPS, weatherBurst)
	osm.UpdateRateLimits(tracing.ServiceEnrichment, cfg.Enrichment.RPS, cfg.Enrichment.Burst)
}

func newEstimator(cfg *config.Config, logger *slog.Logger) (*eco.Estimator, error) {
	prices, err := eco.NewFuelPriceTable(cfg.Prices.Currency, map[eco.FuelCategory]float64{
		eco.FuelPetrol: cfg.Prices.Petrol,
		eco.FuelDiesel: cfg.Prices.Diesel,
		eco.FuelHybrid: cfg.Prices.Hybrid,
	})
	if err != nil {
		return nil, fmt.Errorf("building fuel price table: %w", err)
	}

	enrichOpts := enrichment.DefaultOptions()
	enrichOpts.BaseURL = cfg.Enrichment.BaseURL
	enrichOpts.APIKey = cfg.Enrichment.APIKey
	enrichOpts.Logger = logger
	enrichOpts.OnCache = monitoring.CacheRecorder("enrichment")
	source, err := enrichment.Source(enrichOpts)
	if err != nil {
		return nil, fmt.Errorf("creating enrichment client: %w", err)
	}

	opts := eco.DefaultEstimatorOptions()
	opts.Prices = prices
	opts.Source = source
	opts.EnrichmentTimeout = cfg.Enrichment.Timeout
	opts.Logger = logger
	opts.Hooks = eco.EstimatorHooks{
		OnUnknownWeather: monitoring.RecordUnknownWeather,
		OnEnrichment: func(status eco.EnrichmentStatus, duration time.Duration) {
			monitoring.RecordEnrichment(string(status), duration)
		},
	}
	return eco.NewEstimator(opts), nil
}

// newRouter uses TomTom when a key is configured, since only it reports
// traffic delay, and OSRM otherwise
func newRouter(ctx context.Context, cfg *config.Config) (planner.Router, error) {
	client := osm.GetClient(ctx)

	if cfg.Routing.TomTomAPIKey != "" {
		opts := core.DefaultTomTomOptions()
		opts.BaseURL = cfg.Routing.TomTomBaseURL
		opts.APIKey = cfg.Routing.TomTomAPIKey
		opts.Client = client
		opts.OnCache = monitoring.CacheRecorder("route")
		r, err := core.NewTomTomRouter(opts)
		if err != nil {
			return nil, fmt.Errorf("creating TomTom router: %w", err)
		}
		return r, nil
	}

	opts := core.DefaultOSRMOptions()
	opts.BaseURL = cfg.Routing.OSRMBaseURL
	opts.Client = client
	opts.OnCache = monitoring.CacheRecorder("route")
	return core.NewOSRMRouter(opts), nil
}

func newRegistration(registry *tools.Registry, logger *slog.Logger) *registration.Client {
	svcURL := serviceURL
	if svcURL == "" && enableHTTP {
		svcURL = "http://localhost" + httpAddr
	}
	healthURL := ""
	if svcURL != "" {
		healthURL = strings.TrimRight(svcURL, "/") + "/health"
	}

	return registration.NewClient(registration.Config{
		RegistryURL:  registryURL,
		ServiceName:  monitoring.ServiceName,
		ServiceURL:   svcURL,
		HealthURL:    healthURL,
		Version:      ver.BuildVersion,
		Tools:        registry.GetToolNames(),
		Capabilities: []string{"fuel-estimation", "emissions", "eco-score", "trip-planning"},
		Metadata: map[string]any{
			"transport": map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
		},
	}, logger)
}

func serveMetrics(ctx context.Context, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()

	logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("monitoring server error", "error", err)
	}
}

func startHTTP(
	ctx context.Context,
	mcpSrv *mcpserver.MCPServer,
	estimator *eco.Estimator,
	tripPlanner tools.TripPlanner,
	healthChecker *monitoring.HealthChecker,
	cfg *config.Config,
	logger *slog.Logger,
) {
	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(server.MCPPath),
	)

	handler, err := server.NewHandler(server.HandlerOptions{
		Estimator: estimator,
		Planner:   tripPlanner,
		Health:    healthChecker,
		MCP:       streamable,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create HTTP handler", "error", err)
		return
	}

	if httpAuthToken != "" {
		if err := core.ValidateAuthToken(httpAuthToken); err != nil {
			logger.Warn("HTTP auth token is weak", "error", err)
		}
	}

	if healthChecker != nil {
		transport := "stdio+http"
		if httpOnly {
			transport = "http"
		}
		healthChecker.SetTransport(monitoring.TransportInfo{Type: transport, HTTPAddr: httpAddr})
	}

	httpSrv := server.NewHTTPServer(handler, server.HTTPOptions{
		Addr:           httpAddr,
		AuthToken:      httpAuthToken,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		Logger:         logger,
	})

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
	}()
}

// startExternalServiceMonitoring polls the collaborators that are in use
func startExternalServiceMonitoring(ctx context.Context, hc *monitoring.HealthChecker, cfg *config.Config, logger *slog.Logger) {
	type probe struct {
		url        string
		capability string
	}
	checks := map[string]probe{
		tracing.ServiceNominatim: {strings.TrimRight(cfg.Routing.NominatimURL, "/") + "/status", monitoring.CapabilityPlan},
	}
	if cfg.Routing.TomTomAPIKey != "" {
		checks[tracing.ServiceTomTom] = probe{cfg.Routing.TomTomBaseURL, monitoring.CapabilityPlan}
	} else {
		checks[tracing.ServiceOSRM] = probe{cfg.Routing.OSRMBaseURL, monitoring.CapabilityPlan}
	}
	if cfg.Weather.APIKey != "" {
		checks[tracing.ServiceWeather] = probe{cfg.Weather.BaseURL, monitoring.CapabilityLiveWeather}
	}
	if cfg.Enrichment.Enabled() {
		checks[tracing.ServiceEnrichment] = probe{cfg.Enrichment.BaseURL, monitoring.CapabilityEnrichment}
	}

	names := make([]string, 0, len(checks))
	for name, p := range checks {
		name, p := name, p
		hc.Track(name, p.capability)
		monitor := monitoring.NewConnectionMonitor(name, hc, func(ctx context.Context) error {
			return osm.CheckHealth(ctx, name, p.url)
		}, 30*time.Second)
		monitor.Start()
		go func() {
			<-ctx.Done()
			monitor.Stop()
		}()
		names = append(names, name)
	}
	sort.Strings(names)

	logger.Info("started external service monitoring",
		"services", names,
		"check_interval", "30s")
}

func showVersion() {
	info := ver.Info()
	fmt.Printf("ecoroute %s (commit %s, built %s, %s)\n",
		info["version"], info["commit"], info["build_date"], info["go_version"])
}
