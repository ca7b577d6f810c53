package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kubepilot/kubepilot/internal/apiserver"
	"github.com/kubepilot/kubepilot/internal/config"
	"github.com/kubepilot/kubepilot/internal/lifecycle"
	"github.com/kubepilot/kubepilot/internal/logging"
	"github.com/kubepilot/kubepilot/internal/metrics"
	"github.com/kubepilot/kubepilot/internal/tracing"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the kubepilot HTTP server",
	Long: `Run the HTTP server exposing the assistant.

Endpoints:
  POST /api/v1/assist  answer a natural-language question about the cluster
  GET  /health         liveness probe
  GET  /ready          readiness probe
  GET  /metrics        Prometheus metrics

Examples:
  # Run with defaults against the current kubeconfig context
  kubepilot server

  # Run with a config file and explicit port
  kubepilot server --config /etc/kubepilot/config.yaml --port 9090`,
	RunE: runServer,
}

var (
	serverConfigPath   string
	serverPort         int
	serverKubeconfig   string
	serverAnthropicKey string
	serverModel        string
	serverPromptPath   string
)

func init() {
	serverCmd.Flags().StringVar(&serverConfigPath, "config", "",
		"Path to YAML config file")
	serverCmd.Flags().IntVar(&serverPort, "port", 0,
		"API server port (overrides config)")
	serverCmd.Flags().StringVar(&serverKubeconfig, "kubeconfig", "",
		"Path to kubeconfig (defaults to $KUBECONFIG, then in-cluster config)")
	serverCmd.Flags().StringVar(&serverAnthropicKey, "anthropic-key", "",
		"Anthropic API key (defaults to ANTHROPIC_API_KEY env var)")
	serverCmd.Flags().StringVar(&serverModel, "model", "",
		"Model for generation (overrides config)")
	serverCmd.Flags().StringVar(&serverPromptPath, "system-prompt", "",
		"Path to a system prompt override file, hot-reloaded on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := setupLog(logLevelFlags); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	logger := logging.GetLogger("main")

	cfg, err := loadConfig(serverConfigPath, func(c *config.Config) {
		if serverPort != 0 {
			c.APIPort = serverPort
		}
		if serverKubeconfig != "" {
			c.Kubeconfig = serverKubeconfig
		}
		if serverModel != "" {
			c.Model = serverModel
		}
		if serverPromptPath != "" {
			c.SystemPromptPath = serverPromptPath
		}
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	orchestrator, err := buildOrchestrator(cfg, serverAnthropicKey, m)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager()

	tracer, err := tracing.NewProvider(tracing.Config{
		Enabled:  cfg.TracingEnabled,
		Endpoint: cfg.TracingEndpoint,
	})
	if err != nil {
		return err
	}
	if err := manager.Register(tracer); err != nil {
		return err
	}

	if cfg.SystemPromptPath != "" {
		watcher, err := config.NewPromptWatcher(config.PromptWatcherConfig{
			FilePath: cfg.SystemPromptPath,
		}, func(prompt string) error {
			orchestrator.SetSystemPrompt(prompt)
			return nil
		})
		if err != nil {
			return fmt.Errorf("creating prompt watcher: %w", err)
		}
		if err := manager.Register(watcher); err != nil {
			return err
		}
	}

	server, err := apiserver.New(apiserver.Config{
		Port:           cfg.APIPort,
		CacheSize:      cfg.CacheSize,
		RequestTimeout: 5 * time.Minute,
	}, orchestrator, m, registry, nil)
	if err != nil {
		return err
	}
	if err := manager.Register(server); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		return err
	}
	logger.Info("kubepilot %s serving on port %d", Version, cfg.APIPort)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return manager.Stop()
}
