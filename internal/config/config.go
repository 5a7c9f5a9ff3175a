// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, e.g. APPLIER_SERVER_PORT
const EnvPrefix = "APPLIER"

// Config is the complete runtime configuration. Values come from defaults, an
// optional YAML/JSON file and APPLIER_* environment variables, in increasing
// precedence.
type Config struct {
	DatabaseURL  string `mapstructure:"database_url"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	// StorageDir holds generated resumes, cover letters and screenshots
	StorageDir string `mapstructure:"storage_dir"`
	// ProfilePath is the candidate's base resume (Markdown or plain text)
	ProfilePath string `mapstructure:"profile_path"`
	// LockFile guards the match command against overlapping runs
	LockFile string `mapstructure:"lock_file"`

	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	Index        IndexConfig        `mapstructure:"index"`
	Matching     MatchingConfig     `mapstructure:"matching"`
	Applications ApplicationsConfig `mapstructure:"applications"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	Server       ServerConfig       `mapstructure:"server"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Log          LogConfig          `mapstructure:"log"`
}

// EmbeddingConfig selects the embedding model
type EmbeddingConfig struct {
	Model string `mapstructure:"model"`
}

// GenerationConfig picks the text models that write application documents.
// Empty model names keep the built-in defaults.
type GenerationConfig struct {
	HighlightsModel  string  `mapstructure:"highlights_model"`
	ResumeModel      string  `mapstructure:"resume_model"`
	CoverLetterModel string  `mapstructure:"cover_letter_model"`
	Temperature      float32 `mapstructure:"temperature"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// IndexConfig sizes the IVF vector index
type IndexConfig struct {
	Partitions int `mapstructure:"partitions"`
	Probes     int `mapstructure:"probes"`
	Iterations int `mapstructure:"iterations"`
}

// MatchingConfig tunes the matching engine
type MatchingConfig struct {
	Concurrency          int           `mapstructure:"concurrency"`
	EmbedTimeout         time.Duration `mapstructure:"embed_timeout"`
	MaxEmbeddingAttempts int           `mapstructure:"max_embedding_attempts"`
	BatchSize            int           `mapstructure:"batch_size"`
}

// ApplicationsConfig tunes the application workflow
type ApplicationsConfig struct {
	MaxPerJob  int  `mapstructure:"max_per_job"`
	AutoSubmit bool `mapstructure:"auto_submit"`
}

// BrowserConfig tunes the screenshot automation
type BrowserConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig configures per-client request limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LogConfig configures the logger
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// SetDefaults registers every key with its default so environment overrides
// apply even when no config file mentions the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("storage_dir", "artifacts")
	v.SetDefault("profile_path", "")
	v.SetDefault("lock_file", ".applier-match.lock")

	v.SetDefault("embedding.model", "gemini-embedding-001")

	v.SetDefault("generation.highlights_model", "")
	v.SetDefault("generation.resume_model", "")
	v.SetDefault("generation.cover_letter_model", "")
	v.SetDefault("generation.temperature", 0.2)
	v.SetDefault("generation.max_retries", 2)

	v.SetDefault("index.partitions", 100)
	v.SetDefault("index.probes", 10)
	v.SetDefault("index.iterations", 10)

	v.SetDefault("matching.concurrency", 4)
	v.SetDefault("matching.embed_timeout", "30s")
	v.SetDefault("matching.max_embedding_attempts", 5)
	v.SetDefault("matching.batch_size", 200)

	v.SetDefault("applications.max_per_job", 0)
	v.SetDefault("applications.auto_submit", false)

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.timeout", "45s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 5.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// New returns a viper instance with defaults and environment bindings
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// conventional names used by hosting platforms and the Gemini SDK
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	return v
}

// LoadWith reads the config file at path (or applier.yaml in the working
// directory when path is empty) through v, then validates the result. Callers
// bind command-line flags on v first.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("applier")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values. Credentials are not
// required here since not every command needs them; see RequireDatabase and
// RequireGemini.
func (c *Config) Validate() error {
	if c.Index.Partitions <= 0 {
		return fmt.Errorf("config error: 'index.partitions' must be positive")
	}
	if c.Index.Probes <= 0 || c.Index.Probes > c.Index.Partitions {
		return fmt.Errorf("config error: 'index.probes' must be between 1 and index.partitions")
	}
	if c.Index.Iterations <= 0 {
		return fmt.Errorf("config error: 'index.iterations' must be positive")
	}
	if c.Matching.Concurrency <= 0 {
		return fmt.Errorf("config error: 'matching.concurrency' must be positive")
	}
	if c.Matching.EmbedTimeout <= 0 {
		return fmt.Errorf("config error: 'matching.embed_timeout' must be positive")
	}
	if c.Matching.MaxEmbeddingAttempts < 0 {
		return fmt.Errorf("config error: 'matching.max_embedding_attempts' must be non-negative")
	}
	if c.Matching.BatchSize < 0 {
		return fmt.Errorf("config error: 'matching.batch_size' must be non-negative")
	}
	if c.Applications.MaxPerJob < 0 {
		return fmt.Errorf("config error: 'applications.max_per_job' must be non-negative")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("config error: 'generation.temperature' must be between 0 and 2")
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("config error: 'generation.max_retries' must be non-negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("config error: 'ratelimit.requests_per_second' and 'ratelimit.burst' must be positive when rate limiting is enabled")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("config error: 'storage_dir' must not be empty")
	}
	return nil
}

// RequireDatabase returns an error unless a database URL is configured
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required (set DATABASE_URL or %s_DATABASE_URL)", EnvPrefix)
	}
	return nil
}

// RequireGemini returns an error unless a Gemini API key is configured
func (c *Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("gemini API key is required (set GEMINI_API_KEY or %s_GEMINI_API_KEY)", EnvPrefix)
	}
	return nil
}
