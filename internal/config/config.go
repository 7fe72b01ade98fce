/**
 * Configuration for OCR Verify Worker
 *
 * Service settings come from environment variables (.env is loaded by main).
 * Engine tuning and vocabularies come from YAML, see tuning.go.
 */

package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant vocabulary index
	QdrantURL              string
	QdrantCollection       string
	VocabularyIndexEnabled bool

	// Recognizers
	TesseractEnabled    bool
	TesseractLanguages  string
	TesseractPSM        int
	VisionURL           string
	RecognizerEndpoints map[string]string

	// Worker configuration
	WorkerConcurrency int
	MaxPageSize       int64
	ProcessingTimeout int

	// Tuning resources
	TuningFile     string
	VocabularyFile string

	LogLevel string
	NodeEnv  string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	endpoints, err := parseEndpoints(os.Getenv("RECOGNIZER_ENDPOINTS"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		QueueName:              getEnvOrDefault("QUEUE_NAME", "ocrverify"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		QdrantURL:              getEnvOrDefault("QDRANT_URL", "nexus-qdrant:6334"),
		QdrantCollection:       getEnvOrDefault("QDRANT_COLLECTION", "ocrverify_vocabulary"),
		VocabularyIndexEnabled: getEnvAsBoolOrDefault("VOCABULARY_INDEX_ENABLED", false),
		TesseractEnabled:       getEnvAsBoolOrDefault("TESSERACT_ENABLED", true),
		TesseractLanguages:     getEnvOrDefault("TESSERACT_LANGUAGES", "eng"),
		TesseractPSM:           getEnvAsIntOrDefault("TESSERACT_PSM", 3),
		VisionURL:              getEnvOrDefault("VISION_URL", ""),
		RecognizerEndpoints:    endpoints,
		WorkerConcurrency:      getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		MaxPageSize:            getEnvAsInt64OrDefault("MAX_PAGE_SIZE", 52428800), // 50MB
		ProcessingTimeout:      getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		TuningFile:             os.Getenv("OCRVERIFY_TUNING_FILE"),
		VocabularyFile:         os.Getenv("OCRVERIFY_VOCABULARY_FILE"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		NodeEnv:                getEnvOrDefault("NODE_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if !c.TesseractEnabled && c.VisionURL == "" && len(c.RecognizerEndpoints) == 0 {
		return fmt.Errorf("no recognizers configured: enable Tesseract or set VISION_URL or RECOGNIZER_ENDPOINTS")
	}

	if c.VocabularyIndexEnabled && c.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required when VOCABULARY_INDEX_ENABLED is set")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxPageSize < 1024 || c.MaxPageSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_PAGE_SIZE must be between 1KB and 1GB, got %d", c.MaxPageSize)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %d", c.ProcessingTimeout)
	}

	if c.TesseractPSM < 0 || c.TesseractPSM > 13 {
		return fmt.Errorf("TESSERACT_PSM must be between 0 and 13, got %d", c.TesseractPSM)
	}

	return nil
}

// ProcessingTimeoutDuration converts the millisecond timeout
func (c *Config) ProcessingTimeoutDuration() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// RecognizerIDs lists the remote endpoint ids in sorted order so recognizer
// registration order is stable across restarts
func (c *Config) RecognizerIDs() []string {
	ids := make([]string, 0, len(c.RecognizerEndpoints))
	for id := range c.RecognizerEndpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// parseEndpoints reads "id=url,id=url" pairs
func parseEndpoints(raw string) (map[string]string, error) {
	endpoints := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, rawURL, ok := strings.Cut(pair, "=")
		id, rawURL = strings.TrimSpace(id), strings.TrimSpace(rawURL)
		if !ok || id == "" || rawURL == "" {
			return nil, fmt.Errorf("RECOGNIZER_ENDPOINTS entry %q must be id=url", pair)
		}
		if u, err := url.Parse(rawURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("RECOGNIZER_ENDPOINTS entry %q has an invalid URL", pair)
		}
		if _, dup := endpoints[id]; dup {
			return nil, fmt.Errorf("RECOGNIZER_ENDPOINTS declares %q twice", id)
		}
		endpoints[id] = rawURL
	}
	return endpoints, nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
