package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string
	// Firestore backs notebooks when set; otherwise Redis, otherwise memory.
	FirestoreProject string
	RedisURL         string
	FlushInterval    time.Duration
	// MinIO - assets stay in memory if Endpoint is empty
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Logging
	LogLevel      string
	LogFormat     string
	LogProduction bool
}

func Load() Config {
	return Config{
		Addr:             getenv("NOTEBOOK_ADDR", ":8080"),
		FirestoreProject: getenv("FIRESTORE_PROJECT", ""),
		RedisURL:         getenv("REDIS_URL", ""),
		FlushInterval:    time.Duration(getenvInt("NOTEBOOK_FLUSH_INTERVAL_MS", 500)) * time.Millisecond,
		MinioEndpoint:    getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:   getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:      getenv("MINIO_BUCKET", "notebook-assets"),
		MinioUseSSL:      getenvBool("MINIO_USE_SSL", false),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "console"),
		LogProduction:    getenvBool("LOG_PRODUCTION", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
