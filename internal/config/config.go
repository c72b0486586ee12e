package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/solar"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/validation"
)

// Mauritius coordinates used for the daylight check.
const (
	DefaultLat      = -20.21863
	DefaultLng      = 57.50339
	DefaultTimeZone = "Indian/Mauritius"
)

// DefaultFallbackCloudCover is used for a site whose cloud cover lookup fails.
const DefaultFallbackCloudCover = 50

// DefaultSites are the monitored installations, in display order.
var DefaultSites = []models.Site{
	{Name: "Le Bocage", Lat: -20.2, Lng: 57.5},
	{Name: "Curepipe", Lat: -20.3162, Lng: 57.5166},
	{Name: "Mahebourg", Lat: -20.4081, Lng: 57.7},
	{Name: "Henrietta", Lat: -20.2344, Lng: 57.4761},
	{Name: "Bambous", Lat: -20.2667, Lng: 57.4000},
	{Name: "Triolet", Lat: -20.0589, Lng: 57.5506},
	{Name: "Laventure", Lat: -20.1667, Lng: 57.6667},
	{Name: "Queen Victoria", Lat: -20.2167, Lng: 57.4833},
	{Name: "Bel Air Rivière Sèche", Lat: -20.2583, Lng: 57.7500},
	{Name: "Cap Malheureux", Lat: -19.9833, Lng: 57.6167},
	{Name: "Le Morne", Lat: -20.4500, Lng: 57.3167},
}

var knownSinks = map[string]bool{"appsheet": true, "sqlite": true, "postgres": true, "kafka": true}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	RequestTimeout time.Duration

	Sites []models.Site

	SolarWindURL     string
	SolarWindTimeout time.Duration

	MeteosourceAPIKey  string
	MeteosourceURL     string
	MeteosourceTimeout time.Duration

	SunriseURL     string
	SunriseLat     float64
	SunriseLng     float64
	SunriseTimeout time.Duration

	TimeZone string
	Location *time.Location

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheTTL          time.Duration
	CacheBackend      string // "in_memory" or "memcached"
	CacheWarmInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	Thresholds         solar.Thresholds
	FallbackCloudCover float64
	CoalesceTimeout    time.Duration

	PanelSourceURL      string
	PanelTimeout        time.Duration
	PanelInterval       time.Duration
	PanelRefreshTimeout time.Duration

	HistorySinks      []string
	SQLitePath        string
	PostgresDSN       string
	KafkaBrokers      []string
	KafkaTopic        string
	AppSheetURL       string
	AppSheetAppID     string
	AppSheetTable     string
	AppSheetAccessKey string
	AppSheetTimeout   time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout      time.Duration
	InFlightTimeout      time.Duration
	InFlightPollInterval time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Sites []models.Site `yaml:"sites"`

	SolarWind struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"solar_wind"`

	Meteosource struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"meteosource"`

	Sunrise struct {
		URL     string   `yaml:"url"`
		Lat     *float64 `yaml:"lat"`
		Lng     *float64 `yaml:"lng"`
		Timeout string   `yaml:"timeout"`
	} `yaml:"sunrise"`

	TimeZone string `yaml:"timezone"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		WarmInterval string `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Solar struct {
		OptimalThreshold   *float64 `yaml:"optimal_threshold"`
		NormalThreshold    *float64 `yaml:"normal_threshold"`
		FallbackCloudCover *float64 `yaml:"fallback_cloud_cover"`
		CoalesceTimeout    string   `yaml:"coalesce_timeout"`
	} `yaml:"solar"`

	Panel struct {
		SourceURL      string `yaml:"source_url"`
		Timeout        string `yaml:"timeout"`
		Interval       string `yaml:"interval"`
		RefreshTimeout string `yaml:"refresh_timeout"`
	} `yaml:"panel"`

	History struct {
		Sinks  []string `yaml:"sinks"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
		AppSheet struct {
			URL     string `yaml:"url"`
			AppID   string `yaml:"app_id"`
			Table   string `yaml:"table"`
			Timeout string `yaml:"timeout"`
		} `yaml:"appsheet"`
	} `yaml:"history"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout              string `yaml:"timeout"`
		InFlightTimeout      string `yaml:"in_flight_timeout"`
		InFlightPollInterval string `yaml:"in_flight_poll_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	MeteosourceAPIKey string `yaml:"meteosource_api_key"`
	AppSheetAccessKey string `yaml:"appsheet_access_key"`
	AppSheetAppID     string `yaml:"appsheet_app_id"`
	PostgresDSN       string `yaml:"postgres_dsn"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// Secrets come from env first, then the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.ServerReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.ServerWriteTimeout = parseDuration(fc.Server.WriteTimeout, 30*time.Second)
	cfg.ServerIdleTimeout = parseDuration(fc.Server.IdleTimeout, 60*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.Sites = fc.Sites
	if len(cfg.Sites) == 0 {
		cfg.Sites = append([]models.Site(nil), DefaultSites...)
	}

	cfg.SolarWindURL = fc.SolarWind.URL
	cfg.SolarWindTimeout = parseDurationOrZero(fc.SolarWind.Timeout, 5*time.Second)

	cfg.MeteosourceAPIKey = firstNonEmpty(os.Getenv("METEOSOURCE_API_KEY"), sec.MeteosourceAPIKey)
	if cfg.MeteosourceAPIKey == "" {
		return nil, fmt.Errorf("METEOSOURCE_API_KEY required (set env or config/secrets.yaml meteosource_api_key)")
	}
	cfg.MeteosourceURL = fc.Meteosource.URL
	cfg.MeteosourceTimeout = parseDurationOrZero(fc.Meteosource.Timeout, 5*time.Second)

	cfg.SunriseURL = fc.Sunrise.URL
	cfg.SunriseLat, cfg.SunriseLng = DefaultLat, DefaultLng
	if fc.Sunrise.Lat != nil {
		cfg.SunriseLat = *fc.Sunrise.Lat
	}
	if fc.Sunrise.Lng != nil {
		cfg.SunriseLng = *fc.Sunrise.Lng
	}
	cfg.SunriseTimeout = parseDuration(fc.Sunrise.Timeout, 5*time.Second)

	cfg.TimeZone = strings.TrimSpace(fc.TimeZone)
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CacheWarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend)))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.Thresholds = solar.DefaultThresholds
	if fc.Solar.OptimalThreshold != nil {
		cfg.Thresholds.Optimal = *fc.Solar.OptimalThreshold
	}
	if fc.Solar.NormalThreshold != nil {
		cfg.Thresholds.Normal = *fc.Solar.NormalThreshold
	}
	cfg.FallbackCloudCover = DefaultFallbackCloudCover
	if fc.Solar.FallbackCloudCover != nil {
		cfg.FallbackCloudCover = *fc.Solar.FallbackCloudCover
	}
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Solar.CoalesceTimeout, 20*time.Second)

	cfg.PanelSourceURL = strings.TrimSpace(fc.Panel.SourceURL)
	if cfg.PanelSourceURL == "" {
		cfg.PanelSourceURL = "http://localhost:" + cfg.ServerPort + "/api/solar-data"
	}
	cfg.PanelTimeout = parseDuration(fc.Panel.Timeout, 30*time.Second)
	cfg.PanelInterval = parseDurationOrZero(fc.Panel.Interval, 0)
	cfg.PanelRefreshTimeout = parseDuration(fc.Panel.RefreshTimeout, cfg.PanelTimeout)

	cfg.HistorySinks = normalizeList(fc.History.Sinks)
	cfg.SQLitePath = fc.History.SQLite.Path
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "solar_history.db"
	}
	cfg.PostgresDSN = firstNonEmpty(os.Getenv("POSTGRES_DSN"), sec.PostgresDSN)
	cfg.KafkaBrokers = fc.History.Kafka.Brokers
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		cfg.KafkaBrokers = strings.Split(env, ",")
	}
	cfg.KafkaBrokers = normalizeList(cfg.KafkaBrokers)
	cfg.KafkaTopic = fc.History.Kafka.Topic
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "solar-readings"
	}
	cfg.AppSheetURL = fc.History.AppSheet.URL
	cfg.AppSheetAppID = firstNonEmpty(os.Getenv("APPSHEET_APP_ID"), sec.AppSheetAppID, fc.History.AppSheet.AppID)
	cfg.AppSheetTable = fc.History.AppSheet.Table
	if cfg.AppSheetTable == "" {
		cfg.AppSheetTable = "Table 1"
	}
	cfg.AppSheetAccessKey = firstNonEmpty(os.Getenv("APPSHEET_ACCESS_KEY"), sec.AppSheetAccessKey)
	cfg.AppSheetTimeout = parseDuration(fc.History.AppSheet.Timeout, 10*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightPollInterval = parseDuration(fc.Shutdown.InFlightPollInterval, 50*time.Millisecond)

	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	if len(cfg.TrackedLocations) == 0 {
		for _, s := range cfg.Sites {
			cfg.TrackedLocations = append(cfg.TrackedLocations, s.Name)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets reads the optional secrets file. A missing file yields empty secrets.
func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// normalizeList trims entries and drops empty ones.
func normalizeList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. It resolves the time zone
// and raises RequestTimeout so a snapshot can finish its slowest upstream call.
func validate(cfg *Config) error {
	if cfg.SolarWindTimeout <= 0 {
		return fmt.Errorf("solar_wind.timeout must be positive")
	}
	if cfg.MeteosourceTimeout <= 0 {
		return fmt.Errorf("meteosource.timeout must be positive")
	}
	if slowest := cfg.SolarWindTimeout + cfg.MeteosourceTimeout; cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	if cfg.CoalesceTimeout < 0 {
		return fmt.Errorf("solar.coalesce_timeout must not be negative")
	}
	if cfg.PanelInterval < 0 || cfg.CacheWarmInterval < 0 {
		return fmt.Errorf("panel.interval and cache.warm_interval must not be negative")
	}

	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}

	if len(cfg.Sites) == 0 {
		return fmt.Errorf("at least one site is required")
	}
	if err := validation.ValidateSites(cfg.Sites); err != nil {
		return fmt.Errorf("sites: %w", err)
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc

	if cfg.Thresholds.Normal >= cfg.Thresholds.Optimal {
		return fmt.Errorf("solar.normal_threshold (%v) must be below solar.optimal_threshold (%v)",
			cfg.Thresholds.Normal, cfg.Thresholds.Optimal)
	}
	if cfg.FallbackCloudCover < 0 || cfg.FallbackCloudCover > 100 {
		return fmt.Errorf("solar.fallback_cloud_cover must be within 0..100, got %v", cfg.FallbackCloudCover)
	}

	seen := make(map[string]bool, len(cfg.HistorySinks))
	for _, name := range cfg.HistorySinks {
		if !knownSinks[name] {
			return fmt.Errorf("history.sinks: unknown sink %q", name)
		}
		if seen[name] {
			return fmt.Errorf("history.sinks: duplicate sink %q", name)
		}
		seen[name] = true
	}
	if seen["appsheet"] && (cfg.AppSheetAccessKey == "" || cfg.AppSheetAppID == "") {
		return fmt.Errorf("appsheet sink requires APPSHEET_ACCESS_KEY and APPSHEET_APP_ID")
	}
	if seen["postgres"] && cfg.PostgresDSN == "" {
		return fmt.Errorf("postgres sink requires POSTGRES_DSN")
	}
	if seen["kafka"] && len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka sink requires history.kafka.brokers or KAFKA_BROKERS")
	}
	return nil
}
