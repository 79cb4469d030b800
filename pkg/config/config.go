// Package config loads ecoroute settings from defaults, an optional .env
// file and ECOROUTE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "ECOROUTE"

// Config holds all configuration for the service.
type Config struct {
	Enrichment EnrichmentConfig
	Routing    RoutingConfig
	Weather    WeatherConfig
	Prices     PriceConfig
	Server     ServerConfig
	Tracing    TracingConfig
}

// EnrichmentConfig holds settings for the carbon-footprint enrichment API.
type EnrichmentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Enabled reports whether an API key was configured
func (e EnrichmentConfig) Enabled() bool {
	return e.APIKey != ""
}

// RoutingConfig selects and configures the route provider.
type RoutingConfig struct {
	OSRMBaseURL   string
	TomTomBaseURL string
	TomTomAPIKey  string
	NominatimURL  string
	Timeout       time.Duration
}

// WeatherConfig holds OpenWeatherMap settings.
type WeatherConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// PriceConfig holds fuel unit prices per litre. Read once at start-up.
type PriceConfig struct {
	Currency string
	Petrol   float64
	Diesel   float64
	Hybrid   float64
}

// ServerConfig holds listener settings for the optional HTTP surface.
type ServerConfig struct {
	HTTPAddr       string
	MonitoringAddr string
	RateLimit      float64
	RateBurst      int
	MaxRequestSize int64
}

// TracingConfig configures the OTLP trace exporter. An empty endpoint
// disables export.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	Environment string
}

// Load reads configuration from the environment and an optional .env file
// in the working directory.
func Load() (*Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// the unprefixed collector variable is honoured too
	_ = v.BindEnv("otlp_endpoint", EnvPrefix+"_OTLP_ENDPOINT", "OTLP_ENDPOINT")

	// A missing .env file is fine, the environment alone is enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Enrichment: EnrichmentConfig{
			BaseURL: v.GetString("fuel_api_url"),
			APIKey:  v.GetString("fuel_api_key"),
			Timeout: v.GetDuration("enrichment_timeout"),
			RPS:     v.GetFloat64("enrichment_rps"),
			Burst:   v.GetInt("enrichment_burst"),
		},
		Routing: RoutingConfig{
			OSRMBaseURL:   v.GetString("osrm_url"),
			TomTomBaseURL: v.GetString("tomtom_url"),
			TomTomAPIKey:  v.GetString("tomtom_api_key"),
			NominatimURL:  v.GetString("nominatim_url"),
			Timeout:       v.GetDuration("routing_timeout"),
		},
		Weather: WeatherConfig{
			BaseURL:  v.GetString("weather_url"),
			APIKey:   v.GetString("weather_api_key"),
			CacheTTL: v.GetDuration("weather_cache_ttl"),
			Timeout:  v.GetDuration("weather_timeout"),
		},
		Prices: PriceConfig{
			Currency: v.GetString("currency"),
			Petrol:   v.GetFloat64("price_petrol"),
			Diesel:   v.GetFloat64("price_diesel"),
			Hybrid:   v.GetFloat64("price_hybrid"),
		},
		Server: ServerConfig{
			HTTPAddr:       v.GetString("http_addr"),
			MonitoringAddr: v.GetString("monitoring_addr"),
			RateLimit:      v.GetFloat64("http_rate_limit"),
			RateBurst:      v.GetInt("http_rate_burst"),
			MaxRequestSize: v.GetInt64("http_max_request_size"),
		},
		Tracing: TracingConfig{
			Endpoint:    v.GetString("otlp_endpoint"),
			Insecure:    v.GetBool("otlp_insecure"),
			SampleRatio: v.GetFloat64("otlp_sample_ratio"),
			Environment: v.GetString("environment"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fuel_api_url", "https://api.carbon-footprint.com")
	v.SetDefault("fuel_api_key", "")
	v.SetDefault("enrichment_timeout", "5s")
	v.SetDefault("enrichment_rps", 2.0)
	v.SetDefault("enrichment_burst", 2)

	v.SetDefault("osrm_url", "https://router.project-osrm.org")
	v.SetDefault("tomtom_url", "https://api.tomtom.com")
	v.SetDefault("tomtom_api_key", "")
	v.SetDefault("nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("routing_timeout", "15s")

	v.SetDefault("weather_url", "https://api.openweathermap.org")
	v.SetDefault("weather_api_key", "")
	v.SetDefault("weather_cache_ttl", "10m")
	v.SetDefault("weather_timeout", "10s")

	v.SetDefault("currency", "INR")
	v.SetDefault("price_petrol", 102.0)
	v.SetDefault("price_diesel", 88.0)
	v.SetDefault("price_hybrid", 102.0)

	v.SetDefault("http_addr", ":7082")
	v.SetDefault("monitoring_addr", ":9090")
	v.SetDefault("http_rate_limit", 10.0)
	v.SetDefault("http_rate_burst", 20)
	v.SetDefault("http_max_request_size", 1<<20)

	v.SetDefault("otlp_insecure", true)
	v.SetDefault("otlp_sample_ratio", 1.0)
	v.SetDefault("environment", "development")
}

// Validate checks values that would make the estimator or clients unusable
func (c *Config) Validate() error {
	for name, price := range map[string]float64{
		"petrol": c.Prices.Petrol,
		"diesel": c.Prices.Diesel,
		"hybrid": c.Prices.Hybrid,
	} {
		if price < 0 {
			return fmt.Errorf("fuel price for %s must not be negative, got %f", name, price)
		}
	}
	if c.Enrichment.Timeout <= 0 {
		return fmt.Errorf("enrichment timeout must be positive, got %s", c.Enrichment.Timeout)
	}
	if c.Enrichment.RPS <= 0 {
		return fmt.Errorf("enrichment rate limit must be positive, got %f", c.Enrichment.RPS)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1, got %f", c.Tracing.SampleRatio)
	}
	return nil
}
