package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	// Remote extraction service. When ExtractAPIURL is empty the
	// local docconv extractor is used instead.
	ExtractAPIURL   string
	ExtractAPIKey   string
	ExtractTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	PollInterval    time.Duration
	MaxPollTime     time.Duration

	MaxUploadMB    int
	MinTextLength  int
	MaxErrorLength int
	WorkerPoolSize int

	Port string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "papyra-docs"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		ExtractAPIURL:  getEnv("EXTRACT_API_URL", ""),
		ExtractAPIKey:  getEnv("EXTRACT_API_KEY", ""),
		ExtractTimeout: getEnvSeconds("EXTRACT_TIMEOUT_SECONDS", 300),
		MaxRetries:     getEnvInt("EXTRACT_MAX_RETRIES", 3),
		RetryDelay:     getEnvSeconds("EXTRACT_RETRY_DELAY_SECONDS", 2),
		PollInterval:   getEnvSeconds("EXTRACT_POLL_INTERVAL_SECONDS", 5),
		MaxPollTime:    getEnvSeconds("EXTRACT_MAX_POLL_SECONDS", 600),

		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 100),
		MinTextLength:  getEnvInt("MIN_TEXT_LENGTH", 100),
		MaxErrorLength: getEnvInt("MAX_ERROR_LENGTH", 1000),
		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", 4),

		Port: getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvSeconds(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Second
}
