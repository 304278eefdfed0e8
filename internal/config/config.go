// Package config handles TOML configuration parsing, validation, and
// defaults for reflowd.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for reflowd.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Routing    RoutingConfig    `toml:"routing"`
	Stats      StatsConfig      `toml:"stats"`
	Oracle     OracleConfig     `toml:"oracle"`
	Southbound SouthboundConfig `toml:"southbound"`
	API        APIConfig        `toml:"api"`
}

// ServerConfig holds core process settings.
type ServerConfig struct {
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	EventBufferSize int    `toml:"event_buffer_size"`
	PIDFile         string `toml:"pid_file"`
}

// RoutingConfig holds path selection and re-routing behavior.
type RoutingConfig struct {
	// DesiredRateBps is the per-flow throughput goal in bits per second,
	// matching the Mbps units the harness uses for link capacities.
	DesiredRateBps       float64 `toml:"desired_rate_bps"`
	KShortestPaths       int     `toml:"k_shortest_paths"`
	RerouteRatioTrigger  float64 `toml:"reroute_ratio_trigger"`
	RerouteRatioImprove  float64 `toml:"reroute_ratio_improvement"`
	RerouteCooldownTicks int     `toml:"reroute_cooldown_ticks"`
	ActiveCountdownTicks int     `toml:"active_countdown_ticks"`
}

// StatsConfig holds the per-switch statistics poller settings.
type StatsConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// OracleConfig locates the link capacity document written by the harness.
type OracleConfig struct {
	Path            string `toml:"path"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// SouthboundConfig selects the switch transport driver.
type SouthboundConfig struct {
	Driver string `toml:"driver"` // "external" (default) or "ovs"
	Bridge string `toml:"bridge"` // ovs driver: bridge name
	Sudo   bool   `toml:"sudo"`   // ovs driver: run control programs via sudo
}

// APIConfig holds the read-only diagnostic API settings.
type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Load reads, defaults, and validates a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = DefaultLogFormat
	}
	if cfg.Server.EventBufferSize <= 0 {
		cfg.Server.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.Routing.DesiredRateBps <= 0 {
		cfg.Routing.DesiredRateBps = DefaultDesiredRateBps
	}
	if cfg.Routing.KShortestPaths <= 0 {
		cfg.Routing.KShortestPaths = DefaultKShortestPaths
	}
	if cfg.Routing.RerouteRatioTrigger <= 0 {
		cfg.Routing.RerouteRatioTrigger = DefaultRerouteRatioTrigger
	}
	if cfg.Routing.RerouteRatioImprove <= 0 {
		cfg.Routing.RerouteRatioImprove = DefaultRerouteRatioImprove
	}
	if cfg.Routing.RerouteCooldownTicks <= 0 {
		cfg.Routing.RerouteCooldownTicks = DefaultRerouteCooldownTicks
	}
	if cfg.Routing.ActiveCountdownTicks <= 0 {
		cfg.Routing.ActiveCountdownTicks = DefaultActiveCountdownTicks
	}
	if cfg.Stats.IntervalSeconds <= 0 {
		cfg.Stats.IntervalSeconds = DefaultStatsIntervalSeconds
	}
	if cfg.Oracle.Path == "" {
		cfg.Oracle.Path = DefaultOraclePath
	}
	if cfg.Oracle.CacheTTLSeconds < 0 {
		cfg.Oracle.CacheTTLSeconds = 0
	}
	if cfg.Southbound.Driver == "" {
		cfg.Southbound.Driver = DefaultSouthboundDriver
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = DefaultAPIListen
	}
}

// Validate rejects configurations the controller cannot run with.
func Validate(cfg *Config) error {
	if cfg.Routing.RerouteRatioTrigger >= 1.0 {
		return fmt.Errorf("routing.reroute_ratio_trigger must be < 1.0, got %v", cfg.Routing.RerouteRatioTrigger)
	}
	if cfg.Routing.RerouteRatioImprove <= 1.0 {
		return fmt.Errorf("routing.reroute_ratio_improvement must be > 1.0, got %v", cfg.Routing.RerouteRatioImprove)
	}
	if cfg.Routing.KShortestPaths > MaxKShortestPaths {
		return fmt.Errorf("routing.k_shortest_paths must be <= %d, got %d", MaxKShortestPaths, cfg.Routing.KShortestPaths)
	}
	switch cfg.Southbound.Driver {
	case "external", "ovs":
	default:
		return fmt.Errorf("southbound.driver must be \"external\" or \"ovs\", got %q", cfg.Southbound.Driver)
	}
	if cfg.Southbound.Driver == "ovs" && cfg.Southbound.Bridge == "" {
		return fmt.Errorf("southbound.bridge is required with the ovs driver")
	}
	return nil
}
