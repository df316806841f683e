package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
)

// Config is the top-level configuration structure. It is loaded once at job
// start and treated as immutable for the lifetime of the run.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Enrichment    EnrichmentConfig    `json:"enrichment"`
	Embedding     EmbeddingConfig     `json:"embedding"`
	Attention     AttentionConfig     `json:"attention"`
	Episode       EpisodeConfig       `json:"episode"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Semantic      SemanticConfig      `json:"semantic"`
	Writeback     WritebackConfig     `json:"writeback"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EnrichmentConfig configures the cognitive enrichment collaborator.
type EnrichmentConfig struct {
	Endpoint         string `json:"endpoint"`
	APIKey           string `json:"api_key"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	MaxRetries       int    `json:"max_retries"`       // retry attempts per remote call
	FailureThreshold int    `json:"failure_threshold"` // consecutive failures before the breaker opens
	CacheTTLSecs     int    `json:"cache_ttl_seconds"`
}

// EmbeddingConfig configures the optional embedding collaborator.
type EmbeddingConfig struct {
	Provider       string `json:"provider"` // "api", "local", or "" to disable
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	Dimension      int    `json:"dimension"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
}

// AttentionConfig controls the working-memory admission gate.
type AttentionConfig struct {
	CapacityBase     int     `json:"capacity_base"`     // default 7
	CapacityVariance int     `json:"capacity_variance"` // default 2; capacity stays in [5,9]
	Seed             int64   `json:"seed"`
	RecencyWeight    float64 `json:"recency_weight"`
	SalienceWeight   float64 `json:"salience_weight"`
	WindowSeconds    int     `json:"window_seconds"` // sliding admission window
}

// EpisodeConfig controls short-term episode formation.
type EpisodeConfig struct {
	CoactivationWindowSeconds int     `json:"coactivation_window_seconds"`
	DecayConstantSeconds      float64 `json:"decay_constant_seconds"`
	SentimentWeight           float64 `json:"sentiment_weight"`
	ImportanceWeight          float64 `json:"importance_weight"`
	HebbianMin                int     `json:"hebbian_min"`  // co-activations required for readiness
	SalienceMin               float64 `json:"salience_min"` // salience required for readiness
	HebbianCap                int     `json:"hebbian_cap"`
}

// ConsolidationConfig controls replay, strengthening, and promotion.
type ConsolidationConfig struct {
	LearningRate        float64 `json:"learning_rate"`        // valid range 0.05-0.2
	DecayThreshold      float64 `json:"decay_threshold"`      // below: scaled by 0.8
	StrengthenThreshold float64 `json:"strengthen_threshold"` // above: scaled by 1.2
	PromotionThreshold  float64 `json:"promotion_threshold"`
	BatchSize           int     `json:"batch_size"` // episodes per cycle
	ReplayWindowSeconds int     `json:"replay_window_seconds"`
	CreativePairSamples int     `json:"creative_pair_samples"`
}

// SemanticConfig controls long-term clustering and retrieval ranking.
type SemanticConfig struct {
	ClusterCount         int     `json:"cluster_count"`
	StrengthWeight       float64 `json:"strength_weight"`  // w1
	RankWeight           float64 `json:"rank_weight"`      // w2
	FrequencyWeight      float64 `json:"frequency_weight"` // w3
	RecencyWeight        float64 `json:"recency_weight"`   // w4
	AgeDecayConstantSecs float64 `json:"age_decay_constant_seconds"`
	PruneThreshold       float64 `json:"prune_threshold"`
	AccessWindowDays     int     `json:"access_window_days"`
}

// WritebackConfig controls durable batch persistence.
type WritebackConfig struct {
	BatchSize           int `json:"batch_size"`
	MinBatchSize        int `json:"min_batch_size"` // retry floor
	LockTTLSeconds      int `json:"lock_ttl_seconds"`
	QuarantineThreshold int `json:"quarantine_threshold"` // consecutive runs before dead-letter
	PoolTimeoutSeconds  int `json:"pool_timeout_seconds"` // connection acquire timeout
	MaxRetries          int `json:"max_retries"`          // transient-failure retries per batch
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration. Used by tests and as the
// base for partial config files.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued tunables with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Attention.CapacityBase == 0 {
		c.Attention.CapacityBase = 7
	}
	if c.Attention.CapacityVariance == 0 {
		c.Attention.CapacityVariance = 2
	}
	if c.Attention.RecencyWeight == 0 && c.Attention.SalienceWeight == 0 {
		c.Attention.RecencyWeight = 0.5
		c.Attention.SalienceWeight = 0.5
	}
	if c.Attention.WindowSeconds == 0 {
		c.Attention.WindowSeconds = 300
	}
	if c.Episode.CoactivationWindowSeconds == 0 {
		c.Episode.CoactivationWindowSeconds = 300
	}
	if c.Episode.DecayConstantSeconds == 0 {
		c.Episode.DecayConstantSeconds = 1800
	}
	if c.Episode.SentimentWeight == 0 && c.Episode.ImportanceWeight == 0 {
		c.Episode.SentimentWeight = 0.4
		c.Episode.ImportanceWeight = 0.6
	}
	if c.Episode.HebbianMin == 0 {
		c.Episode.HebbianMin = 3
	}
	if c.Episode.SalienceMin == 0 {
		c.Episode.SalienceMin = 0.5
	}
	if c.Episode.HebbianCap == 0 {
		c.Episode.HebbianCap = 10
	}
	if c.Consolidation.LearningRate == 0 {
		c.Consolidation.LearningRate = 0.1
	}
	if c.Consolidation.DecayThreshold == 0 {
		c.Consolidation.DecayThreshold = 0.3
	}
	if c.Consolidation.StrengthenThreshold == 0 {
		c.Consolidation.StrengthenThreshold = 0.7
	}
	if c.Consolidation.PromotionThreshold == 0 {
		c.Consolidation.PromotionThreshold = 0.5
	}
	if c.Consolidation.BatchSize == 0 {
		c.Consolidation.BatchSize = 100
	}
	if c.Consolidation.ReplayWindowSeconds == 0 {
		c.Consolidation.ReplayWindowSeconds = 3600
	}
	if c.Consolidation.CreativePairSamples == 0 {
		c.Consolidation.CreativePairSamples = 5
	}
	if c.Semantic.ClusterCount == 0 {
		c.Semantic.ClusterCount = 1000
	}
	if c.Semantic.StrengthWeight == 0 && c.Semantic.RankWeight == 0 &&
		c.Semantic.FrequencyWeight == 0 && c.Semantic.RecencyWeight == 0 {
		c.Semantic.StrengthWeight = 0.3
		c.Semantic.RankWeight = 0.2
		c.Semantic.FrequencyWeight = 0.2
		c.Semantic.RecencyWeight = 0.3
	}
	if c.Semantic.AgeDecayConstantSecs == 0 {
		c.Semantic.AgeDecayConstantSecs = 7 * 24 * 3600
	}
	if c.Semantic.PruneThreshold == 0 {
		c.Semantic.PruneThreshold = 0.01
	}
	if c.Semantic.AccessWindowDays == 0 {
		c.Semantic.AccessWindowDays = 7
	}
	if c.Writeback.BatchSize == 0 {
		c.Writeback.BatchSize = 1000
	}
	if c.Writeback.MinBatchSize == 0 {
		c.Writeback.MinBatchSize = 50
	}
	if c.Writeback.LockTTLSeconds == 0 {
		c.Writeback.LockTTLSeconds = 300
	}
	if c.Writeback.QuarantineThreshold == 0 {
		c.Writeback.QuarantineThreshold = 3
	}
	if c.Writeback.PoolTimeoutSeconds == 0 {
		c.Writeback.PoolTimeoutSeconds = 30
	}
	if c.Writeback.MaxRetries == 0 {
		c.Writeback.MaxRetries = 3
	}
	if c.Enrichment.TimeoutSeconds == 0 {
		c.Enrichment.TimeoutSeconds = 30
	}
	if c.Enrichment.MaxRetries == 0 {
		c.Enrichment.MaxRetries = 3
	}
	if c.Enrichment.FailureThreshold == 0 {
		c.Enrichment.FailureThreshold = 3
	}
	if c.Enrichment.CacheTTLSecs == 0 {
		c.Enrichment.CacheTTLSecs = 3600
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = 30
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
}

// Validate rejects configurations that would violate pipeline invariants.
// Runs before any record is processed; a failure here is fatal.
func (c *Config) Validate() error {
	lo := c.Attention.CapacityBase - c.Attention.CapacityVariance
	hi := c.Attention.CapacityBase + c.Attention.CapacityVariance
	if lo < 5 || hi > 9 {
		return fmt.Errorf("config: attention capacity range [%d,%d] outside [5,9]", lo, hi)
	}
	unit := map[string]float64{
		"episode.salience_min":               c.Episode.SalienceMin,
		"consolidation.decay_threshold":      c.Consolidation.DecayThreshold,
		"consolidation.strengthen_threshold": c.Consolidation.StrengthenThreshold,
		"consolidation.promotion_threshold":  c.Consolidation.PromotionThreshold,
		"semantic.prune_threshold":           c.Semantic.PruneThreshold,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s %.3f outside [0,1]", name, v)
		}
	}
	if lr := c.Consolidation.LearningRate; lr < 0.05 || lr > 0.2 {
		return fmt.Errorf("config: consolidation.learning_rate %.3f outside [0.05,0.2]", lr)
	}
	wsum := c.Semantic.StrengthWeight + c.Semantic.RankWeight +
		c.Semantic.FrequencyWeight + c.Semantic.RecencyWeight
	if math.Abs(wsum-1.0) > 1e-9 {
		return fmt.Errorf("config: semantic weights sum to %.3f, want 1.0", wsum)
	}
	if c.Writeback.MinBatchSize <= 0 || c.Writeback.BatchSize < c.Writeback.MinBatchSize {
		return fmt.Errorf("config: writeback batch_size %d below min_batch_size %d",
			c.Writeback.BatchSize, c.Writeback.MinBatchSize)
	}
	if c.Semantic.ClusterCount <= 0 {
		return fmt.Errorf("config: semantic.cluster_count must be positive")
	}
	return nil
}
