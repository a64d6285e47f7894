// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (including a .env file in the working directory)
//  2. Config file (~/.docvault/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (API key, database URL) are masked in String() and
// MarshalJSON() so the config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrMissingDatabaseURL indicates no PostgreSQL connection URL is set.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrMissingAPIKey indicates the OpenAI API key is not set.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidTemperature indicates the sampling temperature is out of range.
	ErrInvalidTemperature = errors.New("temperature must be between 0.0 and 2.0")

	// ErrInvalidChunking indicates the chunk size/overlap pair is unusable.
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

	// ErrInvalidRateLimit indicates the per-minute request budget is not positive.
	ErrInvalidRateLimit = errors.New("requests per minute must be positive")

	// ErrInvalidContextTokens indicates the context token budget is not positive.
	ErrInvalidContextTokens = errors.New("max context tokens must be positive")

	// ErrInvalidTimeout indicates the provider timeout is not positive.
	ErrInvalidTimeout = errors.New("provider timeout must be positive")
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON(). When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Storage
	DatabaseURL string `mapstructure:"database_url" json:"database_url"` // SENSITIVE: masked in MarshalJSON

	// Provider
	OpenAIAPIKey   string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	ChatModel      string  `mapstructure:"chat_model" json:"chat_model"`
	EmbeddingModel string  `mapstructure:"embedding_model" json:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`

	// Rate limiting and timeouts
	RequestsPerMinute int `mapstructure:"llm_requests_per_minute" json:"llm_requests_per_minute"`
	ProviderTimeout   int `mapstructure:"provider_timeout" json:"provider_timeout"` // seconds

	// Retrieval and context assembly
	MaxContextTokens    int     `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`

	// Ingestion
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Tracing
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" json:"service_name"`
	Environment    string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	// A .env file is optional; environment variables win either way.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".docvault"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chat_model", "gpt-4o-mini")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("temperature", 0.7)

	v.SetDefault("llm_requests_per_minute", 10)
	v.SetDefault("provider_timeout", 60)

	v.SetDefault("max_context_tokens", 4000)
	v.SetDefault("similarity_threshold", 0.7)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("otlp_endpoint", "localhost:4318")
	v.SetDefault("service_name", "docvault")
	v.SetDefault("environment", "dev")
}

func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("database_url", "DATABASE_URL")
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("chat_model", "DOCVAULT_CHAT_MODEL")
	mustBind("embedding_model", "DOCVAULT_EMBEDDING_MODEL")
	mustBind("log_level", "DOCVAULT_LOG_LEVEL")
	mustBind("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate fails fast on unusable configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRateLimit, c.RequestsPerMinute)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.ProviderTimeout)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidContextTokens, c.MaxContextTokens)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0: got %.2f", c.SimilarityThreshold)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// ProviderTimeoutDuration returns the provider timeout as a duration.
func (c *Config) ProviderTimeoutDuration() time.Duration {
	return time.Duration(c.ProviderTimeout) * time.Second
}

// maskedValue replaces secrets in logged output.
const maskedValue = "████████"

// maskSecret masks a secret, keeping the first and last two characters of
// longer values for debugging. Short secrets are masked entirely.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.DatabaseURL = maskSecret(a.DatabaseURL)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
