package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// fileConfig mirrors the YAML config file schema. Durations are expressed
// as Go duration strings ("1s", "500ms").
type fileConfig struct {
	APIPort          int    `yaml:"apiPort"`
	LogLevel         string `yaml:"logLevel"`
	Model            string `yaml:"model"`
	EvaluatorModel   string `yaml:"evaluatorModel"`
	MaxTokens        int    `yaml:"maxTokens"`
	MaxIterations    int    `yaml:"maxIterations"`
	MaxRetries       int    `yaml:"maxRetries"`
	BackoffBase      string `yaml:"backoffBase"`
	BackoffCap       string `yaml:"backoffCap"`
	Kubeconfig       string `yaml:"kubeconfig"`
	HelmNamespace    string `yaml:"helmNamespace"`
	SystemPromptPath string `yaml:"systemPromptPath"`
	CacheSize        int    `yaml:"cacheSize"`
	Tracing          struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// LoadFile loads a YAML configuration file using Koanf and merges it over
// the defaults. Fields absent from the file keep their default values.
//
// Error cases:
//   - File not found or cannot be read
//   - Invalid YAML syntax
//   - Invalid duration strings
//   - Validation failure on the merged result
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
	}

	var fc fileConfig
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
	}

	cfg := Defaults()
	if fc.APIPort != 0 {
		cfg.APIPort = fc.APIPort
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.EvaluatorModel != "" {
		cfg.EvaluatorModel = fc.EvaluatorModel
	}
	if fc.MaxTokens != 0 {
		cfg.MaxTokens = fc.MaxTokens
	}
	if fc.MaxIterations != 0 {
		cfg.MaxIterations = fc.MaxIterations
	}
	if fc.MaxRetries != 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	if fc.BackoffBase != "" {
		d, err := time.ParseDuration(fc.BackoffBase)
		if err != nil {
			return nil, fmt.Errorf("invalid backoffBase %q: %w", fc.BackoffBase, err)
		}
		cfg.BackoffBase = d
	}
	if fc.BackoffCap != "" {
		d, err := time.ParseDuration(fc.BackoffCap)
		if err != nil {
			return nil, fmt.Errorf("invalid backoffCap %q: %w", fc.BackoffCap, err)
		}
		cfg.BackoffCap = d
	}
	if fc.Kubeconfig != "" {
		cfg.Kubeconfig = fc.Kubeconfig
	}
	if fc.HelmNamespace != "" {
		cfg.HelmNamespace = fc.HelmNamespace
	}
	if fc.SystemPromptPath != "" {
		cfg.SystemPromptPath = fc.SystemPromptPath
	}
	if fc.CacheSize != 0 {
		cfg.CacheSize = fc.CacheSize
	}
	cfg.TracingEnabled = fc.Tracing.Enabled
	cfg.TracingEndpoint = fc.Tracing.Endpoint

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %q: %w", path, err)
	}

	return cfg, nil
}
