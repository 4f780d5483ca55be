package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Shrike configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines infrastructure availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Risk engine tuning
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`
	Lists   ListsConfig   `json:"lists" yaml:"lists"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// ScoringConfig holds the decision-path tuning knobs. Every field has a
// documented default; zero values are replaced by defaults at load time.
type ScoringConfig struct {
	// Tier thresholds: probability below Low is LOW, below Medium is
	// MEDIUM, below High is HIGH, else CRITICAL.
	TierThresholds TierThresholds `json:"tierThresholds" yaml:"tier_thresholds"`

	// Amount-adaptive decision bands, checked highest-amount first.
	// Tier-based rules apply below the lowest band.
	AmountBands []AmountBand `json:"amountBands" yaml:"amount_bands"`

	// ReviewAmount is the amount above which a MEDIUM-tier event is
	// routed to review instead of approval.
	ReviewAmount float64 `json:"reviewAmount" yaml:"review_amount"`

	// Per-model ensemble combination weights, renormalized over the
	// models that actually produce output.
	ModelWeights map[string]float64 `json:"modelWeights" yaml:"model_weights"`

	// LossGivenFraud models partial recovery after a confirmed fraud.
	LossGivenFraud float64 `json:"lossGivenFraud" yaml:"loss_given_fraud"`

	// SnapshotPath is where the trained model snapshot is persisted.
	SnapshotPath string `json:"snapshotPath" yaml:"snapshot_path"`
}

// TierThresholds are the tier cut points over fraud probability.
type TierThresholds struct {
	Low    float64 `json:"low" yaml:"low"`
	Medium float64 `json:"medium" yaml:"medium"`
	High   float64 `json:"high" yaml:"high"`
}

// AmountBand overrides tier-based decisions above MinAmount: approve below
// Approve, review below Review, decline otherwise.
type AmountBand struct {
	MinAmount float64 `json:"minAmount" yaml:"min_amount"`
	Approve   float64 `json:"approve" yaml:"approve"`
	Review    float64 `json:"review" yaml:"review"`
}

// ListsConfig holds the reference lists consumed by feature extraction.
type ListsConfig struct {
	// VPNRanges and TorRanges are CIDR blocks; first matching range wins
	// and assigns the fixed risk score for its category.
	VPNRanges []string `json:"vpnRanges" yaml:"vpn_ranges"`
	TorRanges []string `json:"torRanges" yaml:"tor_ranges"`

	// DisposableDomains is the deny-list of throwaway email providers.
	DisposableDomains []string `json:"disposableDomains" yaml:"disposable_domains"`

	// HighRiskCountries are ISO alpha-2 codes.
	HighRiskCountries []string `json:"highRiskCountries" yaml:"high_risk_countries"`

	// HighRiskTLDs maps domain suffixes to a risk value; the maximum across
	// matching suffixes applies.
	HighRiskTLDs map[string]float64 `json:"highRiskTlds" yaml:"high_risk_tlds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"service_name"`
	ExporterType string `json:"exporterType" yaml:"exporter_type"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

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
			SQLitePath: "./shrike.db",
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
		Scoring: DefaultScoringConfig(),
		Lists:   DefaultListsConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "shrike",
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
		PostgresDB:   "shrike",
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

// DefaultScoringConfig returns the documented decision-path defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TierThresholds: TierThresholds{Low: 0.3, Medium: 0.6, High: 0.8},
		AmountBands: []AmountBand{
			{MinAmount: 100000, Approve: 0.2, Review: 0.5},
			{MinAmount: 50000, Approve: 0.3, Review: 0.6},
		},
		ReviewAmount: 10000,
		ModelWeights: map[string]float64{
			"logistic": 0.35,
			"bayes":    0.30,
			"centroid": 0.20,
			"anomaly":  0.10,
		},
		LossGivenFraud: 0.8,
		SnapshotPath:   "./models/snapshot.json",
	}
}

// DefaultListsConfig returns the built-in reference lists. Deployments are
// expected to override these with curated feeds.
func DefaultListsConfig() ListsConfig {
	return ListsConfig{
		VPNRanges: []string{
			"45.142.120.0/24",
			"104.200.0.0/13",
		},
		TorRanges: []string{
			"185.220.101.0/24",
			"199.87.154.255/32",
		},
		DisposableDomains: []string{
			"tempmail.com", "guerrillamail.com", "10minutemail.com",
			"maildrop.cc", "mailinator.com", "temp-mail.org",
			"throwaway.email", "yopmail.com",
		},
		HighRiskCountries: []string{"NG", "GH", "PK", "ID", "VN", "BD"},
		HighRiskTLDs: map[string]float64{
			".tk": 70, ".ml": 70, ".ga": 70, ".cf": 70,
		},
	}
}

// LoadConfig reads a YAML config file over the given base configuration.
// An empty path returns the base unchanged.
func LoadConfig(path string, base *Config) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zeroed scoring knobs so a partial config file cannot
// disable the decision path.
func (c *Config) applyDefaults() {
	def := DefaultScoringConfig()
	if c.Scoring.TierThresholds == (TierThresholds{}) {
		c.Scoring.TierThresholds = def.TierThresholds
	}
	if len(c.Scoring.AmountBands) == 0 {
		c.Scoring.AmountBands = def.AmountBands
	}
	if c.Scoring.ReviewAmount == 0 {
		c.Scoring.ReviewAmount = def.ReviewAmount
	}
	if len(c.Scoring.ModelWeights) == 0 {
		c.Scoring.ModelWeights = def.ModelWeights
	}
	if c.Scoring.LossGivenFraud == 0 {
		c.Scoring.LossGivenFraud = def.LossGivenFraud
	}
	if c.Scoring.SnapshotPath == "" {
		c.Scoring.SnapshotPath = def.SnapshotPath
	}
}
