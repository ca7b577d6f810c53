package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kubepilot/kubepilot/internal/agent/loop"
	"github.com/kubepilot/kubepilot/internal/config"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Long: `Run one assistant invocation from the command line and print the
resulting HTML fragment to stdout.

Examples:
  kubepilot ask "why is the payments deployment crash looping?"
  kubepilot ask --model claude-sonnet-4-5-20250929 "list failing pods in kube-system"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askConfigPath   string
	askKubeconfig   string
	askAnthropicKey string
	askModel        string
)

func init() {
	askCmd.Flags().StringVar(&askConfigPath, "config", "",
		"Path to YAML config file")
	askCmd.Flags().StringVar(&askKubeconfig, "kubeconfig", "",
		"Path to kubeconfig (defaults to $KUBECONFIG, then in-cluster config)")
	askCmd.Flags().StringVar(&askAnthropicKey, "anthropic-key", "",
		"Anthropic API key (defaults to ANTHROPIC_API_KEY env var)")
	askCmd.Flags().StringVar(&askModel, "model", "",
		"Model for generation (overrides config)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := setupLog(logLevelFlags); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	cfg, err := loadConfig(askConfigPath, func(c *config.Config) {
		if askKubeconfig != "" {
			c.Kubeconfig = askKubeconfig
		}
		if askModel != "" {
			c.Model = askModel
		}
	})
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator(cfg, askAnthropicKey, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result := orchestrator.Invoke(ctx, strings.Join(args, " "))
	fmt.Println(result.Response)

	if result.State == loop.StateFailed {
		return fmt.Errorf("request failed: %w", result.Err)
	}
	return nil
}
