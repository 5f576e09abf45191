package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository   RepositoryConfig   `json:"repository"`
	Cache        CacheConfig        `json:"cache"`
	EventBus     EventBusConfig     `json:"eventBus"`
	Intelligence IntelligenceConfig `json:"intelligence"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// IntelligenceConfig tunes the scoring pipeline.
type IntelligenceConfig struct {
	// RecomputeCooldown suppresses recompute triggers arriving within
	// this window of the last computation.
	RecomputeCooldown time.Duration `json:"recomputeCooldown"`

	// SingleSourceThreshold is the fraction of complete signals from one
	// source above which single_source_reliance fires.
	SingleSourceThreshold float64 `json:"singleSourceThreshold"`

	// MinDistinctSources below which low_diversity fires.
	MinDistinctSources int `json:"minDistinctSources"`

	// MaxSignalAge beyond which complete signals count as stale for the
	// stale_signals bias flag.
	MaxSignalAge time.Duration `json:"maxSignalAge"`

	// HistoryLimit bounds the per-case intelligence history.
	HistoryLimit int `json:"historyLimit"`
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

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultIntelligenceConfig returns the pipeline defaults.
func DefaultIntelligenceConfig() IntelligenceConfig {
	return IntelligenceConfig{
		RecomputeCooldown:     2 * time.Second,
		SingleSourceThreshold: 0.70,
		MinDistinctSources:    3,
		MaxSignalAge:          72 * time.Hour,
		HistoryLimit:          20,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Intelligence: DefaultIntelligenceConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
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
