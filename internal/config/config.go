package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	LocalFile   = "config.yaml"
	ExampleFile = "config.example.yaml"

	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultChunkSize      = 800
	DefaultChunkOverlap   = 120
)

// Retrieval is the `retrieval` section.
type Retrieval struct {
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingProvider string `yaml:"embedding_provider"` // hash | openai
	EmbeddingDim      int    `yaml:"embedding_dim"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      *int   `yaml:"chunk_overlap"`
	BatchSize         int    `yaml:"batch_size"`
	QueryCacheSize    int    `yaml:"query_cache_size"`
}

// Overlap returns the configured overlap or the default when absent.
func (r Retrieval) Overlap() int {
	if r.ChunkOverlap == nil {
		return DefaultChunkOverlap
	}
	return *r.ChunkOverlap
}

type Paths struct {
	RawDir  string `yaml:"raw_dir"`
	Chunks  string `yaml:"chunks"`
	Index   string `yaml:"index"`
	Meta    string `yaml:"meta"`
	EvalSet string `yaml:"eval_set"`
}

type Ingest struct {
	Include []string `yaml:"include"`
}

type OpenAI struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries int    `yaml:"max_retries"`

	// MinInterval is the minimum spacing between embedding requests, e.g. "200ms".
	MinInterval time.Duration `yaml:"min_interval"`
}

// Config is resolved once per invocation and passed by value.
type Config struct {
	Retrieval Retrieval `yaml:"retrieval"`
	Paths     Paths     `yaml:"paths"`
	Ingest    Ingest    `yaml:"ingest"`
	OpenAI    OpenAI    `yaml:"openai"`

	// Source is the file the configuration was read from.
	Source string `yaml:"-"`
}

// Resolve picks the configuration file in priority order: the explicit path,
// ./config.yaml, then ./config.example.yaml. A missing file is an error that
// wraps os.ErrNotExist. A .env file in the working directory is loaded first
// when present; existing environment variables win.
func Resolve(explicit string) (Config, error) {
	_ = godotenv.Load()
	path, err := locate(explicit, ".")
	if err != nil {
		return Config{}, err
	}
	return Load(path)
}

func locate(explicit, dir string) (string, error) {
	if explicit != "" {
		p := expandHome(explicit)
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file not found: %s: %w", p, os.ErrNotExist)
		}
		return p, nil
	}
	local := filepath.Join(dir, LocalFile)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	example := filepath.Join(dir, ExampleFile)
	if _, err := os.Stat(example); err == nil {
		return example, nil
	}
	return "", fmt.Errorf("config file not found: %s: %w", example, os.ErrNotExist)
}

// Load parses a YAML file and fills defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	r := &c.Retrieval
	if r.EmbeddingProvider == "" {
		r.EmbeddingProvider = "hash"
	}
	r.EmbeddingProvider = strings.ToLower(r.EmbeddingProvider)
	if r.EmbeddingModel == "" {
		r.EmbeddingModel = DefaultEmbeddingModel
	}
	if r.EmbeddingDim <= 0 {
		r.EmbeddingDim = 256
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = DefaultChunkSize
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 32
	}
	if r.QueryCacheSize <= 0 {
		r.QueryCacheSize = 128
	}

	p := &c.Paths
	if p.RawDir == "" {
		p.RawDir = filepath.Join("data", "raw")
	}
	if p.Chunks == "" {
		p.Chunks = filepath.Join("data", "processed", "chunks.jsonl")
	}
	if p.Index == "" {
		p.Index = filepath.Join("data", "index", "index.db")
	}
	if p.Meta == "" {
		p.Meta = filepath.Join("data", "index", "meta.jsonl")
	}
	if p.EvalSet == "" {
		p.EvalSet = filepath.Join("eval", "eval_set.jsonl")
	}

	if len(c.Ingest.Include) == 0 {
		c.Ingest.Include = []string{"**/*.txt", "**/*.pdf"}
	}

	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.APIKeyEnv == "" {
		c.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.OpenAI.MaxRetries <= 0 {
		c.OpenAI.MaxRetries = 2
	}
}

// Validate reports configuration values no stage can work with.
func (c Config) Validate() error {
	var errs []error
	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.chunk_size must be > 0, got %d", c.Retrieval.ChunkSize))
	}
	if c.Retrieval.Overlap() < 0 {
		errs = append(errs, fmt.Errorf("retrieval.chunk_overlap must be >= 0, got %d", c.Retrieval.Overlap()))
	}
	switch c.Retrieval.EmbeddingProvider {
	case "hash", "openai":
	default:
		errs = append(errs, fmt.Errorf("retrieval.embedding_provider: unknown provider %q", c.Retrieval.EmbeddingProvider))
	}
	if c.OpenAI.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("openai.min_interval must be >= 0, got %s", c.OpenAI.MinInterval))
	}
	return errors.Join(errs...)
}

// APIKey reads the OpenAI key from the configured environment variable.
func (c Config) APIKey() string { return os.Getenv(c.OpenAI.APIKeyEnv) }

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
