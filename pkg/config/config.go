package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultConfigPath is the YAML file read by Load when present.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for protoforge.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// MigrationsPath overrides the embedded schema with a directory of SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:""`

	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"protoforge"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"protoforge"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig selects the completion provider and the models used by the agents.
type LLMConfig struct {
	// Provider is "anthropic" or "openai" (any OpenAI-compatible endpoint).
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	BaseURL  string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`

	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`

	// Model is the default generation model.
	Model string `yaml:"model" env:"LLM_MODEL" env-default:"claude-sonnet-4-5-20250929"`
	// DebugModel overrides Model when set. Used to pin a cheap model during local debugging.
	DebugModel string `yaml:"debug_model" env:"LLM_DEBUG_MODEL" env-default:""`
	// FallbackModel is the stronger model the repair loop escalates to.
	FallbackModel string `yaml:"fallback_model" env:"LLM_FALLBACK_MODEL" env-default:"claude-opus-4-1-20250805"`
	// RepairModel is the low-cost model used to fix malformed JSON.
	RepairModel string `yaml:"repair_model" env:"LLM_REPAIR_MODEL" env-default:"claude-3-5-haiku-20241022"`
	// KnownGoodModel is tried once when the configured model id is rejected as not found.
	KnownGoodModel string `yaml:"known_good_model" env:"LLM_KNOWN_GOOD_MODEL" env-default:"claude-3-5-haiku-20241022"`

	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.4"`

	// RecordCalls stores every prompt and response in llm_calls.
	RecordCalls bool `yaml:"record_calls" env:"LLM_RECORD_CALLS" env-default:"true"`
	// CircuitThreshold is the number of consecutive provider failures that opens the circuit.
	CircuitThreshold int `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	// CircuitResetSeconds is how long an open circuit waits before probing.
	CircuitResetSeconds int `yaml:"circuit_reset_seconds" env:"LLM_CIRCUIT_RESET_SECONDS" env-default:"30"`
}

// EffectiveModel returns DebugModel when set, otherwise Model.
func (c *LLMConfig) EffectiveModel() string {
	if c.DebugModel != "" {
		return c.DebugModel
	}
	return c.Model
}

// APIKey returns the key for the configured provider.
func (c *LLMConfig) APIKey() string {
	if c.Provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// GenerationConfig tunes the retry-with-repair loops.
type GenerationConfig struct {
	MaxRetries int `yaml:"max_retries" env:"GENERATION_MAX_RETRIES" env-default:"5"`
	// EscalateAt is the zero-based attempt index from which the fallback model is used.
	EscalateAt int `yaml:"escalate_at" env:"GENERATION_ESCALATE_AT" env-default:"2"`
	// RetryDelayMs is the initial delay between repair attempts. 0 disables the delay.
	RetryDelayMs int `yaml:"retry_delay_ms" env:"GENERATION_RETRY_DELAY_MS" env-default:"0"`
	// FeatureCount is the number of features requested per generation. 0 asks for "at least 8".
	FeatureCount int `yaml:"feature_count" env:"GENERATION_FEATURE_COUNT" env-default:"0"`
}

// StorageConfig holds S3-compatible object storage settings for legacy visualization assets.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:""`
	Region    string `yaml:"region" env:"STORAGE_REGION" env-default:"us-east-1"`
	Bucket    string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"protoforge-visualizations"`
	AccessKey string `yaml:"-" env:"STORAGE_ACCESS_KEY"`
	SecretKey string `yaml:"-" env:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
}

// IsConfigured returns true if object storage is available.
func (c *StorageConfig) IsConfigured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first when present.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(DefaultConfigPath); err == nil {
		if err := cleanenv.ReadConfig(DefaultConfigPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", DefaultConfigPath, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", DefaultConfigPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai":
		c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required for the openai provider")
	}
	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation max_retries must be at least 1")
	}
	if c.Generation.EscalateAt < 1 {
		return fmt.Errorf("generation escalate_at must be at least 1 (set llm.model to escalate immediately)")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection settings as a postgres:// URL (used by migrations).
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
