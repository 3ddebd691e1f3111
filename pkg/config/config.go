package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	OpenAI    OpenAIConfig
	Auth      AuthConfig
	Chunking  ChunkingConfig
	Ranking   RankingConfig
	Context   ContextConfig
	Budget    BudgetConfig
	Cache     CacheConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string   `envconfig:"PORT" default:"8080"`
	Host            string   `envconfig:"HOST" default:"0.0.0.0"`
	Environment     string   `envconfig:"ENVIRONMENT" default:"development"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout int      `envconfig:"SHUTDOWN_TIMEOUT" default:"10"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string `envconfig:"DB_HOST" default:"localhost"`
	Port        string `envconfig:"DB_PORT" default:"5432"`
	User        string `envconfig:"DB_USER" default:"postgres"`
	Password    string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name        string `envconfig:"DB_NAME" default:"lessonlens"`
	SSLMode     string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns    int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns    int    `envconfig:"DB_MIN_CONNS" default:"5"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StorageConfig holds object storage configuration for transcript archives
type StorageConfig struct {
	Endpoint        string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretAccessKey string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	BucketName      string `envconfig:"STORAGE_BUCKET" default:"lessonlens-transcripts"`
	UseSSL          bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
}

// OpenAIConfig holds embedding and generation provider configuration
type OpenAIConfig struct {
	APIKey             string        `envconfig:"OPENAI_API_KEY"`
	BaseURL            string        `envconfig:"OPENAI_BASE_URL" default:""`
	EmbeddingModel     string        `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimension int           `envconfig:"OPENAI_EMBEDDING_DIMENSION" default:"1536"`
	ChatModel          string        `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	TitleModel         string        `envconfig:"OPENAI_TITLE_MODEL" default:"gpt-4o-mini"`
	RequestTimeout     time.Duration `envconfig:"OPENAI_REQUEST_TIMEOUT" default:"60s"`
	MaxRetryElapsed    time.Duration `envconfig:"OPENAI_MAX_RETRY_ELAPSED" default:"30s"`
	EmbeddingBatchSize int           `envconfig:"OPENAI_EMBEDDING_BATCH_SIZE" default:"16"`
	GenerationMaxTokens int          `envconfig:"OPENAI_GENERATION_MAX_TOKENS" default:"1024"`

	// Published per-1K-token rates used for cost accounting.
	EmbeddingPricePer1K  float64 `envconfig:"OPENAI_EMBEDDING_PRICE_PER_1K" default:"0.00002"`
	GenerationInPricePer1K  float64 `envconfig:"OPENAI_GENERATION_IN_PRICE_PER_1K" default:"0.00015"`
	GenerationOutPricePer1K float64 `envconfig:"OPENAI_GENERATION_OUT_PRICE_PER_1K" default:"0.0006"`
}

// AuthConfig holds verification settings for upstream-issued access tokens
type AuthConfig struct {
	AccessSecret string `envconfig:"JWT_ACCESS_SECRET" default:"change-me-in-production"`
}

// ChunkingConfig holds transcript chunking options
type ChunkingConfig struct {
	MinWords                  int  `envconfig:"CHUNK_MIN_WORDS" default:"40"`
	MaxWords                  int  `envconfig:"CHUNK_MAX_WORDS" default:"300"`
	OverlapWords              int  `envconfig:"CHUNK_OVERLAP_WORDS" default:"30"`
	PreserveSentenceBoundaries bool `envconfig:"CHUNK_PRESERVE_SENTENCES" default:"true"`
}

// RankingConfig holds the tunable weights of the candidate ranker.
// The weighting formula is policy, not a structural invariant.
type RankingConfig struct {
	SimilarityWeight  float64 `envconfig:"RANK_SIMILARITY_WEIGHT" default:"0.70"`
	RecencyWeight     float64 `envconfig:"RANK_RECENCY_WEIGHT" default:"0.20"`
	PositionWeight    float64 `envconfig:"RANK_POSITION_WEIGHT" default:"0.10"`
	RecencyHalfLifeDays float64 `envconfig:"RANK_RECENCY_HALF_LIFE_DAYS" default:"180"`
	LongVideoChunkCount int     `envconfig:"RANK_LONG_VIDEO_CHUNK_COUNT" default:"25"`
}

// ContextConfig holds prompt assembly options
type ContextConfig struct {
	MaxTokens        int     `envconfig:"CONTEXT_MAX_TOKENS" default:"3000"`
	HistoryFraction  float64 `envconfig:"CONTEXT_HISTORY_FRACTION" default:"0.3"`
	SearchTopK       int     `envconfig:"SEARCH_TOP_K" default:"8"`
	MinSimilarity    float64 `envconfig:"SEARCH_MIN_SIMILARITY" default:"0.25"`
	HistoryMessages  int     `envconfig:"CONTEXT_HISTORY_MESSAGES" default:"10"`
}

// BudgetConfig holds per-creator spending limits
type BudgetConfig struct {
	DailyCostLimit float64 `envconfig:"BUDGET_DAILY_COST_LIMIT" default:"5.0"`
}

// CacheConfig holds answer cache settings
type CacheConfig struct {
	AnswerTTL        time.Duration `envconfig:"CACHE_ANSWER_TTL" default:"1h"`
	QueryEmbeddingTTL time.Duration `envconfig:"CACHE_QUERY_EMBEDDING_TTL" default:"10m"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be positive")
	}
	if c.Chunking.MaxWords <= 0 || c.Chunking.MinWords <= 0 {
		return fmt.Errorf("chunk word bounds must be positive")
	}
	if c.Chunking.OverlapWords >= c.Chunking.MaxWords {
		return fmt.Errorf("CHUNK_OVERLAP_WORDS must be smaller than CHUNK_MAX_WORDS")
	}
	if c.Context.HistoryFraction < 0 || c.Context.HistoryFraction >= 1 {
		return fmt.Errorf("CONTEXT_HISTORY_FRACTION must be in [0, 1)")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
