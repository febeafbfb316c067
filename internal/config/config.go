// Package config loads oppscan's frozen configuration record: provider
// credentials and budget, datastore connection parameters, ingestion
// knobs, and every scoring/DQ/error-budget threshold. The resolved
// Config is never mutated after load — it is passed by reference into
// the scorer and extractor, and serialized verbatim into every run's
// configSnapshot for reproducibility.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures the external-API client (§4.A).
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LocalBucketCapacity int      `yaml:"local_bucket_capacity"` // leaky-bucket capacity, default 200
	MaxRetries     int           `yaml:"max_retries"`           // default 3
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	Circuit        CircuitConfig `yaml:"circuit"`

	DailyRequestLimit   int64   `yaml:"daily_request_limit"`   // remote's authoritative daily budget, default 8640
	BudgetResetHour     int     `yaml:"budget_reset_hour"`     // UTC hour the remote's budget resets, default 0
	BudgetWarnThreshold float64 `yaml:"budget_warn_threshold"` // default 0.8
}

// CircuitConfig configures the gobreaker wrapping the external-API client.
type CircuitConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DatastoreConfig configures the Postgres connection.
type DatastoreConfig struct {
	DSN            string        `yaml:"dsn"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxOpenConns   int           `yaml:"max_open_conns"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	RetentionDays  int           `yaml:"retention_days"` // default 180
	RedisAddr      string        `yaml:"redis_addr"`     // optional; empty selects the in-memory cache
}

// IngestionConfig configures Phase 1-4 of the orchestrator.
type IngestionConfig struct {
	CategoryID            string        `yaml:"category_id"`
	Domain                string        `yaml:"domain"`
	BatchSize             int           `yaml:"batch_size"`              // default 100
	FreshnessThreshold    time.Duration `yaml:"freshness_threshold"`     // default 20h
	MaxProducts           int           `yaml:"max_products"`
}

// ScoringConfig holds every threshold named in §4.E, overridable and
// captured verbatim in each run's configSnapshot.
type ScoringConfig struct {
	// Margin calibration thresholds (net margin -> points)
	MarginWeakPoints   float64 `yaml:"margin_weak_points"`   // 6
	MarginFairPoints   float64 `yaml:"margin_fair_points"`   // 14
	MarginGoodPoints   float64 `yaml:"margin_good_points"`   // 22
	MarginStrongPoints float64 `yaml:"margin_strong_points"` // 30
	MarginWeakThreshold   float64 `yaml:"margin_weak_threshold"`
	MarginFairThreshold   float64 `yaml:"margin_fair_threshold"`
	MarginGoodThreshold   float64 `yaml:"margin_good_threshold"`
	MarginStrongThreshold float64 `yaml:"margin_strong_threshold"`

	CostOfGoodsPercent float64 `yaml:"cost_of_goods_percent"`
	ReferralFeePercent float64 `yaml:"referral_fee_percent"`
	PPCPercent         float64 `yaml:"ppc_percent"`
	ReturnRatePercent  float64 `yaml:"return_rate_percent"`

	TimePressureHardGate float64 `yaml:"time_pressure_hard_gate"` // 3

	DQThresholdPercent      float64 `yaml:"dq_threshold_percent"`      // 30
	ErrorBudgetThreshold    float64 `yaml:"error_budget_threshold"`    // 0.10

	MinScore      float64 `yaml:"min_score"`       // shortlist gate, default 50 (T_score)
	MinValue      float64 `yaml:"min_value"`        // shortlist gate, default 5000 (T_value)
	MaxItems      int     `yaml:"max_items"`        // default 10
}

// OpsConfig configures the local-only ops surface (/healthz, /metrics).
type OpsConfig struct {
	Host string `yaml:"host"` // default 127.0.0.1, local-only
	Port int    `yaml:"port"` // default 9090
}

// Config is the complete frozen configuration record.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Ops       OpsConfig       `yaml:"ops"`
	LogLevel  string          `yaml:"log_level"`
}

// Default returns the spec's documented default configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			RequestTimeout:      30 * time.Second,
			LocalBucketCapacity: 200,
			MaxRetries:          3,
			BackoffBase:         200 * time.Millisecond,
			BackoffMax:          5 * time.Second,
			Circuit: CircuitConfig{
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
			DailyRequestLimit:   8640,
			BudgetResetHour:     0,
			BudgetWarnThreshold: 0.8,
		},
		Datastore: DatastoreConfig{
			SSLMode:       "require",
			MaxOpenConns:  10,
			QueryTimeout:  10 * time.Second,
			RetentionDays: 180,
		},
		Ingestion: IngestionConfig{
			BatchSize:          100,
			FreshnessThreshold: 20 * time.Hour,
			MaxProducts:        500,
		},
		Scoring: ScoringConfig{
			MarginWeakPoints:   6,
			MarginFairPoints:   14,
			MarginGoodPoints:   22,
			MarginStrongPoints: 30,
			MarginWeakThreshold:   0.10,
			MarginFairThreshold:   0.20,
			MarginGoodThreshold:   0.30,
			MarginStrongThreshold: 0.40,
			CostOfGoodsPercent: 0.35,
			ReferralFeePercent: 0.15,
			PPCPercent:         0.08,
			ReturnRatePercent:  0.05,
			TimePressureHardGate: 3,
			DQThresholdPercent:   30,
			ErrorBudgetThreshold: 0.10,
			MinScore: 50,
			MinValue: 5000,
			MaxItems: 10,
		},
		Ops: OpsConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file, applies environment overrides,
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPPSCAN_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("OPPSCAN_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("OPPSCAN_DATASTORE_DSN"); v != "" {
		cfg.Datastore.DSN = v
	}
	if v := os.Getenv("OPPSCAN_REDIS_ADDR"); v != "" {
		cfg.Datastore.RedisAddr = v
	}
	if v := os.Getenv("OPPSCAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPPSCAN_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Ops.Port = p
		}
	}
}

// Validate rejects an unusable configuration before it can corrupt a run.
func (c *Config) Validate() error {
	if c.Datastore.DSN == "" {
		return fmt.Errorf("datastore.dsn is required")
	}
	if c.Provider.LocalBucketCapacity <= 0 {
		return fmt.Errorf("provider.local_bucket_capacity must be positive")
	}
	if c.Ingestion.BatchSize <= 0 || c.Ingestion.BatchSize > 100 {
		return fmt.Errorf("ingestion.batch_size must be in (0,100]")
	}
	if c.Scoring.DQThresholdPercent <= 0 || c.Scoring.DQThresholdPercent > 100 {
		return fmt.Errorf("scoring.dq_threshold_percent must be in (0,100]")
	}
	if c.Scoring.ErrorBudgetThreshold <= 0 || c.Scoring.ErrorBudgetThreshold > 1 {
		return fmt.Errorf("scoring.error_budget_threshold must be in (0,1]")
	}
	return nil
}

// Snapshot renders the config into the plain map[string]interface{}
// shape stored verbatim in PipelineRun.ConfigSnapshot.
func (c *Config) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"provider":  c.Provider,
		"ingestion": c.Ingestion,
		"scoring":   c.Scoring,
	}
}
