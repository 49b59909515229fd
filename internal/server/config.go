// Package server wires the secret engine, token store, and restriction
// chain behind the HTTP API and serves it over chi.
package server

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration, loaded from a YAML file and
// overridable by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Secret    SecretConfig    `yaml:"secret"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Restrict  RestrictConfig  `yaml:"restrict"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustProxyHops  int           `yaml:"trust_proxy_hops"`
}

// SecretConfig holds secret-lifecycle settings.
type SecretConfig struct {
	KVURL              string        `yaml:"kv_url"`
	AnonymousSizeLimit int64         `yaml:"anonymous_size_limit"`
	DefaultTTL         time.Duration `yaml:"default_ttl"`
	MaxTTL             time.Duration `yaml:"max_ttl"`
}

// AuthConfig holds admin bootstrap settings. Admin tokens themselves
// live only in the KV store; this is just the initial seed used when
// the store has no admin token yet.
type AuthConfig struct {
	BootstrapAdminToken string `yaml:"bootstrap_admin_token"`
}

// RateLimitConfig mirrors the teacher's rate limiter knobs.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	BanDuration       time.Duration `yaml:"ban_duration"`
	MaxViolations     int           `yaml:"max_violations"`
}

// RestrictConfig controls optional restriction evaluators.
type RestrictConfig struct {
	EnableCountryRestrictions bool   `yaml:"enable_country_restrictions"`
	EnableASNRestrictions     bool   `yaml:"enable_asn_restrictions"`
	GeoIPDBPath               string `yaml:"geoip_db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "0.0.0.0:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			TrustProxyHops:  1,
		},
		Secret: SecretConfig{
			KVURL:              "redis://127.0.0.1:6379/0",
			AnonymousSizeLimit: 1 << 20,
			DefaultTTL:         24 * time.Hour,
			MaxTTL:             7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
			CleanupInterval:   10 * time.Minute,
			BanDuration:       1 * time.Hour,
			MaxViolations:     5,
		},
		Restrict: RestrictConfig{
			EnableCountryRestrictions: false,
			EnableASNRestrictions:     false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
	}
}

// LoadConfig loads configuration from a YAML file, starting from
// DefaultConfig so any field the file omits keeps its default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvironment overrides config values from environment variables,
// taking precedence over both defaults and the YAML file.
func (c *Config) ApplyEnvironment() {
	if v := os.Getenv("HAKANAI_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("HAKANAI_TRUST_PROXY_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.TrustProxyHops = n
		}
	}

	if v := os.Getenv("HAKANAI_KV_URL"); v != "" {
		c.Secret.KVURL = v
	}
	if v := os.Getenv("HAKANAI_ANONYMOUS_SIZE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Secret.AnonymousSizeLimit = n
		}
	}
	if v := os.Getenv("HAKANAI_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Secret.DefaultTTL = d
		}
	}
	if v := os.Getenv("HAKANAI_MAX_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Secret.MaxTTL = d
		}
	}

	if v := os.Getenv("HAKANAI_BOOTSTRAP_ADMIN_TOKEN"); v != "" {
		c.Auth.BootstrapAdminToken = v
	}

	if v := os.Getenv("HAKANAI_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HAKANAI_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("HAKANAI_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.BurstSize = n
		}
	}

	if v := os.Getenv("HAKANAI_ENABLE_COUNTRY_RESTRICTIONS"); v != "" {
		c.Restrict.EnableCountryRestrictions = v == "true" || v == "1"
	}
	if v := os.Getenv("HAKANAI_ENABLE_ASN_RESTRICTIONS"); v != "" {
		c.Restrict.EnableASNRestrictions = v == "true" || v == "1"
	}
	if v := os.Getenv("HAKANAI_GEOIP_DB_PATH"); v != "" {
		c.Restrict.GeoIPDBPath = v
	}

	if v := os.Getenv("HAKANAI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HAKANAI_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("HAKANAI_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HAKANAI_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = n
		}
	}
}
