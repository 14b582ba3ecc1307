// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// LambdaMaxDocumentBytes is the largest document that fits a base64 encoded
// multipart body inside the 6 MB synchronous Lambda invocation payload.
const LambdaMaxDocumentBytes = 4 << 20

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds the environment driven configuration for both entry points.
type Config struct {
	// Secrets and routing
	ParamPrefix string `env:"PARAM_PREFIX,notEmpty"`
	APIPrefix   string `env:"API_PREFIX" envDefault:"/api/v1"`

	// Memory store
	MemoryBackend string `env:"MEMORY_BACKEND" envDefault:"dynamodb"`
	StateTable    string `env:"STATE_TABLE"`
	DatabaseURL   string `env:"DATABASE_URL"`

	// Collaborators
	PolicyTable        string `env:"POLICY_TABLE,notEmpty"`
	DocumentsBucket    string `env:"DOCUMENTS_BUCKET"`
	UploadDir          string `env:"UPLOAD_DIR" envDefault:"uploads/claims"`
	PromptTemplatePath string `env:"PROMPT_TEMPLATE_PATH"`

	// Completion provider
	LLMBaseURL     string  `env:"LLM_BASE_URL" envDefault:"https://api.aimlapi.com/v1"`
	LLMModel       string  `env:"LLM_MODEL" envDefault:"openai/gpt-5-chat-latest"`
	LLMTemperature float32 `env:"LLM_TEMPERATURE" envDefault:"0.4"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"2048"`

	// Recency window
	MemoryMaxTurns int           `env:"MEMORY_MAX_TURNS" envDefault:"3"`
	MemoryMaxAge   time.Duration `env:"MEMORY_MAX_AGE" envDefault:"15m"`

	// Timeouts and retries per collaborator
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	StoreRetries      int           `env:"STORE_RETRIES" envDefault:"1"`
	PersistRetries    int           `env:"PERSIST_RETRIES" envDefault:"0"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	CompletionRetries int           `env:"COMPLETION_RETRIES" envDefault:"1"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF" envDefault:"200ms"`
	PolicyTimeout     time.Duration `env:"POLICY_TIMEOUT" envDefault:"5s"`

	// Turn handling
	SerializeTurns    bool `env:"SERIALIZE_TURNS" envDefault:"false"`
	ModerationEnabled bool `env:"MODERATION_ENABLED" envDefault:"false"`
	MaxMessageLength  int  `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
	MaxDocumentBytes  int  `env:"MAX_DOCUMENT_BYTES" envDefault:"10485760"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	DevAddr  string `env:"DEV_ADDR" envDefault:":8080"`
}

// Load parses environment variables into Config and validates the result.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	cfg.MemoryBackend = strings.ToLower(strings.TrimSpace(cfg.MemoryBackend))
	cfg.StateTable = strings.TrimSpace(cfg.StateTable)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.DocumentsBucket = strings.TrimSpace(cfg.DocumentsBucket)
	cfg.APIPrefix = "/" + strings.Trim(strings.TrimSpace(cfg.APIPrefix), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.MemoryBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			return fmt.Errorf("config: STATE_TABLE is required for the %s backend", BackendDynamoDB)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown MEMORY_BACKEND %q", c.MemoryBackend)
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("config: LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("config: LLM_TEMPERATURE must be within [0, 2], got %v", c.LLMTemperature)
	}
	if c.MemoryMaxTurns <= 0 || c.MemoryMaxAge <= 0 {
		return fmt.Errorf("config: MEMORY_MAX_TURNS and MEMORY_MAX_AGE must be positive")
	}
	if c.StoreRetries < 0 || c.PersistRetries < 0 || c.CompletionRetries < 0 {
		return fmt.Errorf("config: retry counts must not be negative")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.MaxDocumentBytes <= 0 {
		return fmt.Errorf("config: MAX_DOCUMENT_BYTES must be positive, got %d", c.MaxDocumentBytes)
	}
	return nil
}

// CapForLambda lowers MaxDocumentBytes to what a proxy event can carry and
// reports whether it changed.
func (c *Config) CapForLambda() bool {
	if c.MaxDocumentBytes <= LambdaMaxDocumentBytes {
		return false
	}
	c.MaxDocumentBytes = LambdaMaxDocumentBytes
	return true
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
