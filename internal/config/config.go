package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"alfredoptarigan/candidate-screener/internal/poll"
	"alfredoptarigan/candidate-screener/internal/retry"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Qdrant   QdrantConfig
	Gemini   GeminiConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	PublicURL string

	// RequestsPerMinute caps requests per client IP; zero disables it.
	RequestsPerMinute int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Enabled    bool
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbedModel     string
	RequestsPerMin int
}

type StorageConfig struct {
	Root         string
	MaxFileSize  int64
	ResumeBucket string
	VideoBucket  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
}

type PipelineConfig struct {
	Poll  poll.Policy
	Retry retry.Policy
	// SentimentChunkSize is the largest piece of text sent in one
	// sentiment request.
	SentimentChunkSize int
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

var defaults = map[string]any{
	"PORT":       "3000",
	"ENV":        "development",
	"PUBLIC_URL": "",

	"RATE_LIMIT_PER_MIN": 120,

	"DB_HOST":     "localhost",
	"DB_PORT":     "5432",
	"DB_USER":     "postgres",
	"DB_PASSWORD": "postgres",
	"DB_NAME":     "candidate_screener",

	"QDRANT_URL":        "http://localhost:6334",
	"QDRANT_API_KEY":    "",
	"QDRANT_COLLECTION": "candidates",
	"QDRANT_ENABLED":    true,

	"GEMINI_API_KEY":          "",
	"GEMINI_MODEL":            "gemini-2.5-flash",
	"GEMINI_EMBED_MODEL":      "text-embedding-004",
	"GEMINI_REQUESTS_PER_MIN": 60,

	"STORAGE_ROOT":  "./uploads",
	"MAX_FILE_SIZE": 104857600,
	"RESUME_BUCKET": "resumes",
	"VIDEO_BUCKET":  "videos",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"REDIS_QUEUE":    "screener:notifications",

	"WORKER_CONCURRENCY":   3,
	"WORKER_POLL_INTERVAL": "10s",
	"WORKER_MAX_ATTEMPTS":  3,
	"WORKER_STALE_AFTER":   "30m",

	"POLL_INTERVAL":        "2s",
	"POLL_TIMEOUT":         "10m",
	"POLL_MAX_ATTEMPTS":    0,
	"RETRY_MAX_ATTEMPTS":   3,
	"RETRY_INITIAL_DELAY":  "1s",
	"RETRY_MAX_DELAY":      "10s",
	"RETRY_MAX_ELAPSED":    "30s",
	"SENTIMENT_CHUNK_SIZE": 4500,

	"LOG_JSON":  false,
	"LOG_DEBUG": false,
}

// Load reads configuration from the environment, after loading .env (or
// envFile when set) into it. v may carry flag bindings; nil uses a fresh
// instance.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	files := []string{}
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := godotenv.Load(files...); err != nil && envFile != "" {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("PORT"),
			Env:       v.GetString("ENV"),
			PublicURL: v.GetString("PUBLIC_URL"),

			RequestsPerMinute: v.GetInt("RATE_LIMIT_PER_MIN"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
		},
		Qdrant: QdrantConfig{
			URL:        v.GetString("QDRANT_URL"),
			APIKey:     v.GetString("QDRANT_API_KEY"),
			Collection: v.GetString("QDRANT_COLLECTION"),
			Enabled:    v.GetBool("QDRANT_ENABLED"),
		},
		Gemini: GeminiConfig{
			APIKey:         v.GetString("GEMINI_API_KEY"),
			Model:          v.GetString("GEMINI_MODEL"),
			EmbedModel:     v.GetString("GEMINI_EMBED_MODEL"),
			RequestsPerMin: v.GetInt("GEMINI_REQUESTS_PER_MIN"),
		},
		Storage: StorageConfig{
			Root:         v.GetString("STORAGE_ROOT"),
			MaxFileSize:  v.GetInt64("MAX_FILE_SIZE"),
			ResumeBucket: v.GetString("RESUME_BUCKET"),
			VideoBucket:  v.GetString("VIDEO_BUCKET"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Queue:    v.GetString("REDIS_QUEUE"),
		},
		Worker: WorkerConfig{
			Concurrency:  v.GetInt("WORKER_CONCURRENCY"),
			PollInterval: v.GetDuration("WORKER_POLL_INTERVAL"),
			MaxAttempts:  v.GetInt("WORKER_MAX_ATTEMPTS"),
			StaleAfter:   v.GetDuration("WORKER_STALE_AFTER"),
		},
		Pipeline: PipelineConfig{
			Poll: poll.Policy{
				Interval:    v.GetDuration("POLL_INTERVAL"),
				Timeout:     v.GetDuration("POLL_TIMEOUT"),
				MaxAttempts: v.GetInt("POLL_MAX_ATTEMPTS"),
			},
			Retry: retry.Policy{
				MaxAttempts:     v.GetUint("RETRY_MAX_ATTEMPTS"),
				InitialInterval: v.GetDuration("RETRY_INITIAL_DELAY"),
				MaxInterval:     v.GetDuration("RETRY_MAX_DELAY"),
				MaxElapsed:      v.GetDuration("RETRY_MAX_ELAPSED"),
			},
			SentimentChunkSize: v.GetInt("SENTIMENT_CHUNK_SIZE"),
		},
		Log: LogConfig{
			JSON:  v.GetBool("LOG_JSON"),
			Debug: v.GetBool("LOG_DEBUG"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.Poll.Timeout <= 0 && c.Pipeline.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("invalid config: POLL_TIMEOUT or POLL_MAX_ATTEMPTS must bound the transcription wait")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("invalid config: WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Storage.ResumeBucket == c.Storage.VideoBucket {
		return fmt.Errorf("invalid config: RESUME_BUCKET and VIDEO_BUCKET must differ")
	}
	return nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// BaseURL is the address other components use to reach this server.
func (c *Config) BaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%s", c.Server.Port)
}
