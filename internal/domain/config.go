package domain

import "time"

// Config holds the complete Kestrel configuration. Loaded once at process
// start and passed explicitly into constructors; there is no global state.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices (SQLite/channels vs
	// Postgres/Redis/NATS).
	Tier Tier `json:"tier"`

	Thresholds Thresholds    `json:"thresholds"`
	Budgets    LatencyBudgets `json:"budgets"`

	Gates     GatesConfig     `json:"gates"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Reasoner  ReasonerConfig  `json:"reasoner"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`

	// FilingInstitution appears on generated SAR drafts.
	FilingInstitution string `json:"filingInstitution"`
}

// Thresholds are the process-wide tunables that control escalation and
// downgrade behavior. Changing them never changes detector weights.
type Thresholds struct {
	// StatisticalGate: anomaly scores at or above this escalate past layer 1.
	StatisticalGate float64 `json:"statisticalGate"`

	// NarrativeGate: coherence scores below this escalate past layer 2.
	NarrativeGate float64 `json:"narrativeGate"`

	// ExpertConfidenceBlock: minimum confidence for a BLOCK to stand.
	ExpertConfidenceBlock float64 `json:"expertConfidenceBlock"`

	// ExpertConfidenceReview: minimum confidence for an APPROVE to stand.
	ExpertConfidenceReview float64 `json:"expertConfidenceReview"`
}

// DefaultThresholds returns the reference threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StatisticalGate:        3.0,
		NarrativeGate:          0.7,
		ExpertConfidenceBlock:  0.8,
		ExpertConfidenceReview: 0.5,
	}
}

// LatencyBudgets bound each layer's blocking calls. A caller-supplied
// deadline always wins when it is tighter.
type LatencyBudgets struct {
	Statistical time.Duration `json:"statistical"`
	Narrative   time.Duration `json:"narrative"`
	Adjudication time.Duration `json:"adjudication"`
}

// DefaultBudgets returns the per-layer latency budgets.
func DefaultBudgets() LatencyBudgets {
	return LatencyBudgets{
		Statistical:  10 * time.Millisecond,
		Narrative:    200 * time.Millisecond,
		Adjudication: 3 * time.Second,
	}
}

// GatesConfig selects and configures the two gate implementations.
type GatesConfig struct {
	// Mode is "local" (built-in scorers) or "remote" (HTTP services).
	Mode string `json:"mode"`

	StatisticalURL string `json:"statisticalUrl,omitempty"`
	NarrativeURL   string `json:"narrativeUrl,omitempty"`
}

// KnowledgeConfig configures the regulatory knowledge-base client.
type KnowledgeConfig struct {
	// URL of the vector-search service. Empty disables retrieval.
	URL string `json:"url,omitempty"`

	// MaxCharsPerResult caps each retrieved passage when building context.
	MaxCharsPerResult int `json:"maxCharsPerResult"`
}

// ReasonerConfig configures the language-model reasoning client.
type ReasonerConfig struct {
	APIKey      string  `json:"-"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
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
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels + local gates.
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a Community-tier configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:       TierCommunity,
		Thresholds: DefaultThresholds(),
		Budgets:    DefaultBudgets(),
		Gates: GatesConfig{
			Mode: "local",
		},
		Knowledge: KnowledgeConfig{
			MaxCharsPerResult: 1500,
		},
		Reasoner: ReasonerConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1500,
			Temperature: 0.0,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
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
			ServiceName: "kestrel",
		},
		FilingInstitution: "Kestrel",
	}
}

// ProConfig returns a Pro-tier configuration.
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
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Gates.Mode = "remote"
	cfg.Tracing.Enabled = true
	return cfg
}
