package domain

import (
	"time"
)

// Config holds the complete Mlinzi configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Mode selects the deployment profile
	Mode DeploymentMode `json:"mode"`

	// Detection holds the risk-engine tuning knobs
	Detection DetectionConfig `json:"detection"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DeploymentMode determines which backends the service wires up.
type DeploymentMode string

const (
	// ModeStandalone runs on SQLite + in-process LRU + channel bus.
	// Single-node, zero external services.
	ModeStandalone DeploymentMode = "standalone"

	// ModeServer runs on PostgreSQL + Redis + NATS.
	ModeServer DeploymentMode = "server"
)

// DetectionConfig holds the risk-engine thresholds and limits. The level
// thresholds are configurable at runtime but default to the authoritative
// engine constants; the aggregation formula itself is fixed.
type DetectionConfig struct {
	// Level thresholds, evaluated highest to lowest, inclusive-lower.
	CriticalThreshold float64 `json:"criticalThreshold"`
	HighThreshold     float64 `json:"highThreshold"`
	MediumThreshold   float64 `json:"mediumThreshold"`

	// MaxRecentAlerts caps the in-memory recent-alerts list.
	MaxRecentAlerts int `json:"maxRecentAlerts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// DefaultDetectionConfig returns the authoritative engine constants.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		CriticalThreshold: 0.95,
		HighThreshold:     0.80,
		MediumThreshold:   0.60,
		MaxRecentAlerts:   10,
	}
}

// DefaultConfig returns a default configuration for standalone mode.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Mode:      ModeStandalone,
		Detection: DefaultDetectionConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./mlinzi.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "mlinzi",
		},
	}
}

// ServerModeConfig returns a configuration for server mode.
func ServerModeConfig() *Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeServer
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "mlinzi",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
