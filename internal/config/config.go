package config

import "time"

// Config holds all configuration for the application
type Config struct {
	// APIPort is the port the API server listens on
	APIPort int

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string

	// Model is the model identifier used for generation
	Model string

	// EvaluatorModel is the model identifier used for evaluation.
	// Empty means the generation model is used for both roles.
	EvaluatorModel string

	// MaxTokens is the maximum number of tokens per generation
	MaxTokens int

	// MaxIterations bounds the generate/evaluate loop
	MaxIterations int

	// MaxRetries bounds evaluation retry attempts
	MaxRetries int

	// BackoffBase is the base delay for exponential backoff
	BackoffBase time.Duration

	// BackoffCap is the upper bound for a single backoff delay
	BackoffCap time.Duration

	// Kubeconfig is the path to the kubeconfig file.
	// Empty means $KUBECONFIG, then in-cluster config.
	Kubeconfig string

	// HelmNamespace is the namespace used for Helm release operations
	HelmNamespace string

	// SystemPromptPath optionally points to a file overriding the built-in
	// system prompt. The file is hot-reloaded when it changes.
	SystemPromptPath string

	// CacheSize is the number of normalized responses kept in the LRU cache
	CacheSize int

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		APIPort:       8080,
		LogLevel:      "info",
		Model:         "claude-sonnet-4-5-20250929",
		MaxTokens:     4096,
		MaxIterations: 3,
		MaxRetries:    3,
		BackoffBase:   time.Second,
		BackoffCap:    60 * time.Second,
		HelmNamespace: "default",
		CacheSize:     256,
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return NewConfigError("APIPort must be between 1 and 65535")
	}

	if c.Model == "" {
		return NewConfigError("Model must not be empty")
	}

	if c.MaxIterations < 1 {
		return NewConfigError("MaxIterations must be at least 1")
	}

	if c.MaxRetries < 1 {
		return NewConfigError("MaxRetries must be at least 1")
	}

	if c.BackoffBase <= 0 {
		return NewConfigError("BackoffBase must be positive")
	}

	if c.BackoffCap < c.BackoffBase {
		return NewConfigError("BackoffCap must be at least BackoffBase")
	}

	if c.CacheSize < 1 {
		return NewConfigError("CacheSize must be at least 1")
	}

	if c.TracingEnabled && c.TracingEndpoint == "" {
		return NewConfigError("TracingEndpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
