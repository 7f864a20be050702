// Package config loads ingestion settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full ingestion configuration. It is loaded once at start-up
// and passed to constructors; nothing reads it through a global.
type Config struct {
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Cleaning   CleaningConfig   `yaml:"cleaning"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Categories []Category       `yaml:"categories"`
	NATS       NATSConfig       `yaml:"nats"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`
}

// QdrantConfig describes the vector store connection and upload policy.
type QdrantConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	CollectionName  string        `yaml:"collection_name"`
	VectorSize      int           `yaml:"vector_size"`
	DistanceMetric  string        `yaml:"distance_metric"`
	Timeout         time.Duration `yaml:"timeout"`
	UploadBatchSize int           `yaml:"upload_batch_size"`
	UploadDelay     time.Duration `yaml:"upload_delay"`
}

// Addr returns the gRPC address host:port.
func (q QdrantConfig) Addr() string {
	return fmt.Sprintf("%s:%d", q.Host, q.Port)
}

// EmbeddingConfig describes the embedding provider and its pacing.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	APIBase         string        `yaml:"api_base"`
	AzureEndpoint   string        `yaml:"azure_endpoint"`
	AzureDeployment string        `yaml:"azure_deployment"`
	APIVersion      string        `yaml:"api_version"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	MaxChars        int           `yaml:"max_chars"`

	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	WindowMargin      time.Duration `yaml:"window_margin"`
	InterRequestDelay time.Duration `yaml:"inter_request_delay"`
	RateLimitWait     time.Duration `yaml:"rate_limit_wait"`
	ItemDelay         time.Duration `yaml:"item_delay"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after"`
}

// ChunkingConfig controls the chunking engine.
type ChunkingConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`
	Overlap         int     `yaml:"overlap"`
	MinChunkSize    int     `yaml:"min_chunk_size"`
	RespectSentence bool    `yaml:"respect_sentence"`
	Language        string  `yaml:"language"`
	Mode            string  `yaml:"mode"`
	UseStructural   bool    `yaml:"use_structural"`
	UseStatistical  bool    `yaml:"use_statistical"`
	CJKThreshold    float64 `yaml:"cjk_threshold"`
}

// CleaningConfig controls text normalization.
type CleaningConfig struct {
	MinLineLength   int      `yaml:"min_line_length"`
	CustomPatterns  []string `yaml:"custom_patterns"`
	DefaultEncoding string   `yaml:"default_encoding"`
}

// MetadataConfig toggles language-analysis enrichment.
type MetadataConfig struct {
	Enrich bool `yaml:"enrich"`
}

// ProcessingConfig controls directory ingestion.
type ProcessingConfig struct {
	BatchSize         int     `yaml:"batch_size"`
	EnableCaching     bool    `yaml:"enable_caching"`
	CacheDir          string  `yaml:"cache_dir"`
	CacheBackend      string  `yaml:"cache_backend"`
	SkipErrors        bool    `yaml:"skip_errors"`
	MaxErrors         int     `yaml:"max_errors"`
	CategoryThreshold float64 `yaml:"category_threshold"`
}

// LoggingConfig controls the slog handler built by the CLI.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// NATSConfig enables ingestion events when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Neo4jConfig enables the entity graph when URI is set.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Qdrant: QdrantConfig{
			Host:            "localhost",
			Port:            6334,
			CollectionName:  "rag_documents",
			VectorSize:      1536,
			DistanceMetric:  "Cosine",
			Timeout:         30 * time.Second,
			UploadBatchSize: 500,
			UploadDelay:     time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-ada-002",
			APIBase:           "https://api.openai.com/v1",
			APIVersion:        "2024-02-01",
			BatchSize:         20,
			MaxRetries:        3,
			Timeout:           30 * time.Second,
			RetryBaseDelay:    time.Second,
			MaxChars:          30000,
			RequestsPerWindow: 50,
			Window:            time.Minute,
			WindowMargin:      5 * time.Second,
			InterRequestDelay: 2 * time.Second,
			RateLimitWait:     30 * time.Second,
			ItemDelay:         time.Second,
			DefaultRetryAfter: 10 * time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:       800,
			Overlap:         150,
			MinChunkSize:    100,
			RespectSentence: true,
			Language:        "auto",
			Mode:            "best",
			UseStructural:   true,
			UseStatistical:  true,
			CJKThreshold:    0.05,
		},
		Cleaning: CleaningConfig{
			MinLineLength:   10,
			DefaultEncoding: "utf-8",
		},
		Metadata: MetadataConfig{Enrich: true},
		Processing: ProcessingConfig{
			BatchSize:         32,
			EnableCaching:     true,
			CacheDir:          "data/cache",
			CacheBackend:      "file",
			SkipErrors:        true,
			MaxErrors:         10,
			CategoryThreshold: 0.3,
		},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
		NATS:    NATSConfig{Subject: "ingest.document"},
	}
}

// Load reads .env, then the YAML file at path, then environment overrides.
// A missing YAML file is not an error: the defaults are used.
func Load(path string) (Config, error) {
	loadDotEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("config: file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if len(cfg.Categories) == 0 {
		cfg.Categories = []Category{{Name: GeneralCategory, Description: "default category"}}
	}
	return cfg, nil
}

// loadDotEnv loads .env from the working directory or the nearest parent.
// Existing environment variables win.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				slog.Warn("config: load .env", "path", p, "error", err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (c *Config) applyEnv() {
	setString(&c.Qdrant.Host, "QDRANT_HOST")
	setInt(&c.Qdrant.Port, "QDRANT_PORT")
	setString(&c.Qdrant.CollectionName, "QDRANT_COLLECTION")
	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.APIBase, "OPENAI_API_BASE")
	setString(&c.Embedding.AzureEndpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&c.Embedding.AzureDeployment, "AZURE_EMBEDDING_DEPLOYMENT")
	if c.Embedding.Provider == ProviderAzure {
		setString(&c.Embedding.APIKey, "AZURE_OPENAI_API_KEY")
	} else {
		setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	}
	setString(&c.Logging.Level, "LOG_LEVEL")
	c.Logging.Level = strings.ToUpper(c.Logging.Level)
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Neo4j.URI, "NEO4J_URI")
	setString(&c.Neo4j.User, "NEO4J_USER")
	setString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&c.Processing.CacheDir, "RAG_CACHE_DIR")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring non-numeric env", "key", key, "value", v)
		return
	}
	*dst = n
}

// Providers.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Validate reports every invalid field, joined, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Qdrant.Host == "" {
		bad("qdrant.host is empty")
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		bad("qdrant.port %d out of range", c.Qdrant.Port)
	}
	if c.Qdrant.VectorSize <= 0 {
		bad("qdrant.vector_size must be positive")
	}
	if c.Qdrant.UploadBatchSize <= 0 {
		bad("qdrant.upload_batch_size must be positive")
	}
	switch strings.ToLower(c.Qdrant.DistanceMetric) {
	case "cosine", "dot", "euclid", "manhattan":
	default:
		bad("qdrant.distance_metric %q unknown", c.Qdrant.DistanceMetric)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIBase == "" {
			bad("embedding.api_base is empty")
		}
	case ProviderAzure:
		if c.Embedding.AzureEndpoint == "" || c.Embedding.AzureDeployment == "" {
			bad("embedding.azure_endpoint and embedding.azure_deployment are required for azure")
		}
	default:
		bad("embedding.provider %q unknown", c.Embedding.Provider)
	}
	if c.Embedding.APIKey == "" {
		bad("embedding api key is not set")
	}
	if c.Embedding.BatchSize <= 0 {
		bad("embedding.batch_size must be positive")
	}
	if c.Embedding.MaxRetries <= 0 {
		bad("embedding.max_retries must be positive")
	}

	if c.Chunking.ChunkSize < c.Chunking.MinChunkSize {
		bad("chunking.chunk_size %d is smaller than min_chunk_size %d", c.Chunking.ChunkSize, c.Chunking.MinChunkSize)
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		bad("chunking.overlap %d must be smaller than chunk_size %d", c.Chunking.Overlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 {
		bad("chunking.overlap must not be negative")
	}
	switch c.Chunking.Mode {
	case "best", "statistical", "regex", "fixed":
	default:
		bad("chunking.mode %q unknown", c.Chunking.Mode)
	}
	for _, p := range c.Cleaning.CustomPatterns {
		if _, err := regexp.Compile(p); err != nil {
			bad("cleaning.custom_patterns %q: %v", p, err)
		}
	}

	if c.Processing.BatchSize <= 0 {
		bad("processing.batch_size must be positive")
	}
	switch c.Processing.CacheBackend {
	case "file", "badger":
	default:
		bad("processing.cache_backend %q unknown", c.Processing.CacheBackend)
	}
	return errors.Join(errs...)
}
