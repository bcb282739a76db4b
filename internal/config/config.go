package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Bidding    BiddingConfig    `yaml:"bidding"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	Driver       string `yaml:"driver"` // "postgres" or "memory"
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings. An empty OTLPEndpoint
// disables export and logs JSON to stdout.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// MigrationsConfig controls schema migration at startup.
type MigrationsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Lease   LeaseConfig `yaml:"lease"`
}

// LeaseConfig holds the Kubernetes Lease used to run migrations on one
// replica at a time.
type LeaseConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`

	// Identity names this replica; empty means POD_NAME or the hostname.
	Identity string `yaml:"identity"`
}

// BiddingConfig holds bid admissibility settings.
type BiddingConfig struct {
	// DefaultRuleSet applies to auctions that pin no rule-set.
	DefaultRuleSet RuleSetConfig `yaml:"default_rule_set"`
}

// RuleSetConfig mirrors the numeric fields of a bid rule-set.
type RuleSetConfig struct {
	MinDecrement     float64 `yaml:"min_decrement"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`
	MaxBidsPerWindow int     `yaml:"max_bids_per_window"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ShutdownTimeout:   15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			SSLMode:      "disable",
			Driver:       "postgres",
			MaxOpenConns: 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "pregaod",
			ServiceVersion: "0.1.0",
		},
		Migrations: MigrationsConfig{
			Enabled: true,
			Lease: LeaseConfig{
				Enabled:        false,
				LeaseName:      "pregaod-migrations",
				LeaseNamespace: "default",
				LeaseDuration:  15 * time.Second,
				RenewDeadline:  10 * time.Second,
				RetryPeriod:    2 * time.Second,
			},
		},
		Bidding: BiddingConfig{
			DefaultRuleSet: RuleSetConfig{
				MinDecrement:     2.00,
				CooldownMinutes:  30,
				MaxBidsPerWindow: 2,
			},
		},
	}
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}

	rs := c.Bidding.DefaultRuleSet
	if rs.MinDecrement <= 0 {
		return fmt.Errorf("bidding.default_rule_set.min_decrement must be > 0, got %v", rs.MinDecrement)
	}
	if rs.CooldownMinutes <= 0 {
		return fmt.Errorf("bidding.default_rule_set.cooldown_minutes must be > 0, got %d", rs.CooldownMinutes)
	}
	if rs.MaxBidsPerWindow <= 0 {
		return fmt.Errorf("bidding.default_rule_set.max_bids_per_window must be > 0, got %d", rs.MaxBidsPerWindow)
	}
	return nil
}
