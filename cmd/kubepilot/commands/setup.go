package commands

import (
	"fmt"

	"github.com/kubepilot/kubepilot/internal/agent/loop"
	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/agent/tools"
	"github.com/kubepilot/kubepilot/internal/config"
	"github.com/kubepilot/kubepilot/internal/helm"
	"github.com/kubepilot/kubepilot/internal/kube"
	"github.com/kubepilot/kubepilot/internal/logging"
	"github.com/kubepilot/kubepilot/internal/metrics"
)

// loadConfig returns defaults merged with the optional config file and
// applies CLI overrides.
func loadConfig(configPath string, override func(*config.Config)) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", configPath, err)
		}
	} else {
		cfg = config.Defaults()
	}

	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildOrchestrator wires the model providers, cluster tools, and loop from
// configuration. A cluster or Helm client that cannot be built is logged and
// skipped: the assistant still answers, just without that tool group.
func buildOrchestrator(cfg *config.Config, apiKey string, m *metrics.Metrics) (*loop.Orchestrator, error) {
	logger := logging.GetLogger("setup")

	providerCfg := provider.Config{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}

	var gen provider.Provider
	var err error
	if apiKey != "" {
		gen, err = provider.NewAnthropicProviderWithKey(apiKey, providerCfg)
	} else {
		gen, err = provider.NewAnthropicProvider(providerCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("creating generation provider: %w", err)
	}

	eval := gen
	if cfg.EvaluatorModel != "" && cfg.EvaluatorModel != cfg.Model {
		evalCfg := providerCfg
		evalCfg.Model = cfg.EvaluatorModel
		if apiKey != "" {
			eval, err = provider.NewAnthropicProviderWithKey(apiKey, evalCfg)
		} else {
			eval, err = provider.NewAnthropicProvider(evalCfg)
		}
		if err != nil {
			return nil, fmt.Errorf("creating evaluation provider: %w", err)
		}
	}

	deps := tools.Dependencies{}
	kubeClient, err := kube.BuildClient(cfg.Kubeconfig)
	if err != nil {
		logger.Warn("no kubernetes cluster available, cluster tools disabled: %v", err)
	} else {
		deps.Kube = kubeClient
		deps.Helm = helm.NewClient()
		deps.HelmNamespace = cfg.HelmNamespace
	}

	orchestrator := loop.New(loop.Options{
		Generator:     gen,
		Evaluator:     eval,
		Registry:      tools.NewRegistry(deps),
		MaxIterations: cfg.MaxIterations,
		MaxRetries:    cfg.MaxRetries,
		Backoff: loop.Backoff{
			Base: cfg.BackoffBase,
			Cap:  cfg.BackoffCap,
		},
		Metrics: m,
	})

	if cfg.SystemPromptPath != "" {
		prompt, err := config.LoadPromptFile(cfg.SystemPromptPath)
		if err != nil {
			return nil, fmt.Errorf("loading system prompt: %w", err)
		}
		orchestrator.SetSystemPrompt(prompt)
	}

	return orchestrator, nil
}
