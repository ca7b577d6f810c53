package loop

import (
	"context"
	"fmt"

	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/agent/tools"
	"github.com/kubepilot/kubepilot/internal/logging"
)

// maxToolRounds bounds the tool-call exchange within one generation attempt
// so a model that keeps requesting tools cannot spin forever.
const maxToolRounds = 8

// generator produces a draft answer for a task prompt, retrying transient
// model failures with backoff. Tool calls requested by the model are
// dispatched through the registry within a single attempt.
type generator struct {
	provider     provider.Provider
	registry     *tools.Registry
	systemPrompt func() string
	maxAttempts  int
	backoff      Backoff
	sleep        sleeper
	logger       *logging.Logger
}

// generate runs up to maxAttempts generation attempts. An empty draft is a
// retryable failure: the loop never accepts an empty answer. The last error
// is returned when all attempts are exhausted.
func (g *generator) generate(ctx context.Context, taskPrompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		draft, err := g.attempt(ctx, taskPrompt)
		if err == nil && draft != "" {
			return draft, nil
		}
		if err == nil {
			err = fmt.Errorf("model returned an empty answer")
		}
		lastErr = err

		g.logger.WarnWithFields("generation attempt failed",
			logging.Field("attempt", attempt),
			logging.Field("max_attempts", g.maxAttempts),
			logging.Field("error", err.Error()),
		)

		if attempt == g.maxAttempts {
			break
		}
		if serr := g.sleep(ctx, g.backoff.Delay(attempt)); serr != nil {
			return "", serr
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", g.maxAttempts, lastErr)
}

// attempt runs one full generation exchange, dispatching tool calls until
// the model produces a final text answer.
func (g *generator) attempt(ctx context.Context, taskPrompt string) (string, error) {
	messages := []provider.Message{
		{Role: provider.RoleUser, Content: taskPrompt},
	}

	var defs []provider.ToolDefinition
	if g.registry != nil {
		defs = g.registry.Definitions()
	}

	for round := 0; round <= maxToolRounds; round++ {
		resp, err := g.provider.Chat(ctx, g.systemPrompt(), messages, defs)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if g.registry == nil {
			return "", fmt.Errorf("model requested tool %s but no tools are configured", resp.ToolCalls[0].Name)
		}

		messages = append(messages, provider.Message{
			Role:    provider.RoleAssistant,
			Content: resp.Content,
			ToolUse: resp.ToolCalls,
		})

		results := make([]provider.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			content, isError := g.registry.Execute(ctx, call.Name, call.Input)
			results = append(results, provider.ToolResultBlock{
				ToolUseID: call.ID,
				Content:   content,
				IsError:   isError,
			})
		}
		messages = append(messages, provider.Message{
			Role:       provider.RoleUser,
			ToolResult: results,
		})
	}

	return "", fmt.Errorf("model exceeded %d tool rounds without a final answer", maxToolRounds)
}
