package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Index      IndexConfig      `mapstructure:"index"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Type         string `mapstructure:"type"` // sqlite, postgres
	Path         string `mapstructure:"path"` // sqlite file path
	DSN          string `mapstructure:"dsn"`  // postgres connection string
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type QdrantConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	UseTLS           bool   `mapstructure:"use_tls"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3-compatible, minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// EmbeddingsConfig holds the set of configured embedding providers. A build
// request selects one by llm_type, matching EmbeddingConfig.Name.
type EmbeddingsConfig struct {
	Default   string            `mapstructure:"default"`
	Providers []EmbeddingConfig `mapstructure:"providers"`
}

type PipelineConfig struct {
	// Workers bounds the embedding fan-out pool per job.
	Workers int `mapstructure:"workers"`
	// BatchSize is the number of chunk texts per embedding request.
	BatchSize int `mapstructure:"batch_size"`
	// MaxChunkSize and ChunkOverlap parametrize the chunker (characters).
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	// MaxAttempts bounds retries of transient embedding and storage failures.
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type IndexConfig struct {
	// PollInterval between readiness checks while an index is provisioning.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PublishTimeout bounds the whole provisioning wait.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	// UpsertBatchSize is the number of points per upsert call.
	UpsertBatchSize int `mapstructure:"upsert_batch_size"`
}

type WatchdogConfig struct {
	// HeartbeatTimeout is how long an active job may stay silent before the
	// watchdog fails it.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/quern.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection_prefix", "engine")
	v.SetDefault("storage.type", "s3-compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "documents")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("embeddings.default", "vertex")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.max_chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 100)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_delay", "500ms")
	v.SetDefault("index.poll_interval", "10s")
	v.SetDefault("index.publish_timeout", "10m")
	v.SetDefault("index.upsert_batch_size", 100)
	v.SetDefault("watchdog.heartbeat_timeout", "5m")
	v.SetDefault("watchdog.scan_interval", "30s")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("qdrant.use_tls", "QDRANT_USE_TLS")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Embeddings.applyDefaults()

	for i := range cfg.Embeddings.Providers {
		cfg.Embeddings.Providers[i].ResolveEnvVars()
		if err := cfg.Embeddings.Providers[i].Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// applyDefaults fills in a usable provider set when the config file declares
// none, so a fresh checkout runs against an OpenAI-compatible endpoint with
// nothing but env vars.
func (e *EmbeddingsConfig) applyDefaults() {
	if len(e.Providers) > 0 {
		return
	}
	e.Providers = []EmbeddingConfig{
		{
			Name:       "vertex",
			Provider:   "vertex",
			Model:      "textembedding-gecko",
			APIKeyEnv:  "VERTEX_API_KEY",
			BaseURLEnv: "VERTEX_BASE_URL",
			Dimensions: 768,
			IsDefault:  true,
		},
		{
			Name:       "openai",
			Provider:   "openai-compatible",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "OPENAI_API_KEY",
			BaseURLEnv: "OPENAI_BASE_URL",
			Dimensions: 1536,
		},
		{
			Name:       "jina",
			Provider:   "jina",
			Model:      "jina-embeddings-v3",
			APIKeyEnv:  "JINA_API_KEY",
			Dimensions: 1024,
		},
	}
	if e.Default == "" {
		e.Default = "vertex"
	}
}

// FindProvider returns the embedding config whose Name matches llmType, or
// nil when no such provider is configured.
func (e *EmbeddingsConfig) FindProvider(llmType string) *EmbeddingConfig {
	for i := range e.Providers {
		if e.Providers[i].Name == llmType {
			return &e.Providers[i]
		}
	}
	return nil
}
