package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tenkindex/internal/ingest"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"tenkindex"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"tenkindex"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd    string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxMsgSize int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"3072"`
	EmbedBatchSize      int    `envconfig:"EMBED_BATCH_SIZE" default:"16"`
	EmbedConcurrency    int    `envconfig:"EMBED_CONCURRENCY" default:"1"`
	EmbedTimeoutSeconds int    `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`
	UploadBatchSize     int    `envconfig:"UPLOAD_BATCH_SIZE" default:"50"`

	// Chunking and extraction
	ChunkSize     int    `envconfig:"CHUNK_SIZE" default:"1500"`
	ChunkOverlap  int    `envconfig:"CHUNK_OVERLAP" default:"200"`
	MinTextLength int    `envconfig:"MIN_TEXT_LENGTH" default:"1000"`
	PatternFile   string `envconfig:"PATTERN_FILE"`

	EnableAPI            bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker         bool   `envconfig:"ENABLE_WORKER" default:"true"`
	IngestionConcurrency int    `envconfig:"INGESTION_CONCURRENCY" default:"4"`
	MigrationPath        string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// A missing .env is fine; the shell may provide everything.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.EmbedBatchSize <= 0 || c.UploadBatchSize <= 0 {
		return fmt.Errorf("%w: batch sizes must be positive", ErrInvalid)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSIONS must be positive", ErrInvalid)
	}
	return nil
}

// PipelineOptions maps the ingestion settings onto pipeline options.
func (c *Config) PipelineOptions() ingest.Options {
	return ingest.Options{
		ChunkSize:        c.ChunkSize,
		ChunkOverlap:     c.ChunkOverlap,
		MinTextLength:    c.MinTextLength,
		EmbedBatchSize:   c.EmbedBatchSize,
		EmbedConcurrency: c.EmbedConcurrency,
		EmbedTimeout:     time.Duration(c.EmbedTimeoutSeconds) * time.Second,
		UploadBatchSize:  c.UploadBatchSize,
		Dimensions:       c.EmbeddingDimensions,
	}
}
