package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by FACTNET_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FACTNET_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func DatabaseUser() string {
	return os.Getenv("DATABASE_USER")
}

func DatabasePassword() string {
	return os.Getenv("DATABASE_PASSWORD")
}

// StorageBackend selects the fact store.
// Defaults to "postgres" when DATABASE_URL is set, "memory" otherwise.
// Valid values: postgres, memory
func StorageBackend() string {
	b := os.Getenv("STORAGE_BACKEND")
	if b != "" {
		return b
	}
	if DatabaseURL() != "" {
		return "postgres"
	}
	return "memory"
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// DetectorProvider returns the configured relationship detector provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func DetectorProvider() string {
	p := os.Getenv("DETECTOR_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// DetectorModel returns the chat model used for relationship detection.
// Empty means the provider default.
func DetectorModel() string {
	return os.Getenv("DETECTOR_MODEL")
}

// DetectorAPIKey returns the API key for the configured detector provider.
func DetectorAPIKey() string {
	switch DetectorProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// DetectorWorkers returns the detection worker pool size.
// Defaults to 4 if not set.
func DetectorWorkers() int {
	n, err := strconv.Atoi(os.Getenv("DETECTOR_WORKERS"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "none" if not set.
// Valid values: openai, mock, none
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock", "none":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
