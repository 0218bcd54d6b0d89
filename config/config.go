package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// Config holds all configuration for the retrieval service.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig locates the vector store and lexical index snapshots.
type StoreConfig struct {
	Path           string `yaml:"path"`            // bbolt file; empty means <dir>/.rag/index.db
	LexicalBackend string `yaml:"lexical_backend"` // "bolt" or "file"
	LexicalDir     string `yaml:"lexical_dir"`     // used by the file backend
}

// LexicalConfig holds BM25 parameters.
type LexicalConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// RetrievalConfig holds query engine defaults.
type RetrievalConfig struct {
	ResultCount       int           `yaml:"result_count"`
	MinRelevance      float64       `yaml:"min_relevance"`
	MergeStrategy     string        `yaml:"merge_strategy"` // "interleave" or "best"
	Fusion            string        `yaml:"fusion"`         // "rrf" or "blend"
	RRFK              int           `yaml:"rrf_k"`
	VectorWeight      float64       `yaml:"vector_weight"`
	LexicalWeight     float64       `yaml:"lexical_weight"`
	CandidateFactor   int           `yaml:"candidate_factor"`
	CollectionTimeout time.Duration `yaml:"collection_timeout"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"` // "memory", "redis" or "none"
	MaxEntries    int           `yaml:"max_entries"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`    // "openai", "deepseek", "jina", "ollama", "hash"
	Model           string        `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv       string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL         string        `yaml:"base_url"`
	Dimension       int           `yaml:"dimension"`
	BatchSize       int           `yaml:"batch_size"`
	CacheSize       int           `yaml:"cache_size"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// IngestConfig controls file discovery and chunking.
type IngestConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	ChunkTokens  int      `yaml:"chunk_tokens"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Workers      int      `yaml:"workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics endpoint
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			LexicalBackend: "bolt",
		},
		Lexical: LexicalConfig{
			K1: 1.2,
			B:  0.75,
		},
		Retrieval: RetrievalConfig{
			ResultCount:       5,
			MinRelevance:      0,
			MergeStrategy:     string(domain.MergeInterleave),
			Fusion:            string(domain.FusionRRF),
			RRFK:              60,
			VectorWeight:      0.7,
			LexicalWeight:     0.3,
			CandidateFactor:   2,
			CollectionTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: 1000,
			TTL:        5 * time.Minute,
			RedisAddr:  "localhost:6379",
		},
		Embedding: EmbeddingConfig{
			Provider:        "openai",
			Model:           "text-embedding-3-small",
			APIKeyEnv:       "OPENAI_API_KEY",
			Dimension:       1536,
			BatchSize:       100,
			CacheSize:       1000,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Ingest: IngestConfig{
			Includes:     []string{"**/*.md", "**/*.txt", "**/*.rst", "**/*.html", "**/*.csv", "**/*.json"},
			Excludes:     []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/.rag/**"},
			ChunkTokens:  512,
			ChunkOverlap: 50,
			Workers:      4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects values the retrieval layer cannot run with.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.VectorWeight < 0 || r.LexicalWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", domain.ErrConfiguration)
	}
	if r.VectorWeight+r.LexicalWeight == 0 {
		return fmt.Errorf("%w: fusion weights sum to zero", domain.ErrConfiguration)
	}
	switch domain.MergeStrategy(r.MergeStrategy) {
	case domain.MergeInterleave, domain.MergeBest:
	default:
		return fmt.Errorf("%w: unknown merge strategy %q", domain.ErrConfiguration, r.MergeStrategy)
	}
	switch domain.FusionStrategy(r.Fusion) {
	case domain.FusionRRF, domain.FusionBlend:
	default:
		return fmt.Errorf("%w: unknown fusion strategy %q", domain.ErrConfiguration, r.Fusion)
	}
	if r.MinRelevance < 0 || r.MinRelevance > 1 {
		return fmt.Errorf("%w: min_relevance must be within [0,1]", domain.ErrConfiguration)
	}
	if c.Lexical.K1 <= 0 {
		return fmt.Errorf("%w: lexical k1 must be positive", domain.ErrConfiguration)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("%w: lexical b must be within [0,1]", domain.ErrConfiguration)
	}
	switch c.Store.LexicalBackend {
	case "bolt", "file":
	default:
		return fmt.Errorf("%w: unknown lexical backend %q", domain.ErrConfiguration, c.Store.LexicalBackend)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", domain.ErrConfiguration, c.Cache.Backend)
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the store database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".rag", "index.db")
}

// LexicalDir returns the default directory for file-backed lexical indexes.
func LexicalDir(dir string) string {
	return filepath.Join(dir, ".rag", "lexical")
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	ragDir := filepath.Join(dir, ".rag")
	return os.MkdirAll(ragDir, 0755)
}
