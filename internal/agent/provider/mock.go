package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MockProvider implements Provider for testing without real API calls.
// It replays a pre-scripted sequence of steps; each Chat call consumes the
// next step. When the script is exhausted the last step is repeated.
type MockProvider struct {
	name  string
	steps []MockStep

	mu           sync.Mutex
	requestCount int

	// Requests records the prompts seen by each Chat call, for assertions.
	Requests []MockRequest
}

// MockStep describes one scripted Chat response.
type MockStep struct {
	// Text is the text content returned by the model.
	Text string `yaml:"text"`

	// ToolCalls lists tool invocations the model requests before answering.
	ToolCalls []MockToolCall `yaml:"tool_calls"`

	// Err, when non-empty, makes the step fail with this error message.
	Err string `yaml:"error"`
}

// MockToolCall is a scripted tool invocation.
type MockToolCall struct {
	Name  string                 `yaml:"name"`
	Input map[string]interface{} `yaml:"input"`
}

// MockRequest records the inputs of one Chat call.
type MockRequest struct {
	SystemPrompt string
	Messages     []Message
	ToolCount    int
}

// MockScenario is the YAML schema for scripted scenarios.
type MockScenario struct {
	Name  string     `yaml:"name"`
	Steps []MockStep `yaml:"steps"`
}

// NewMockProvider creates a MockProvider from scripted steps.
func NewMockProvider(steps ...MockStep) *MockProvider {
	return &MockProvider{
		name:  "scripted",
		steps: steps,
	}
}

// NewMockProviderFromFile loads a scenario YAML file into a MockProvider.
func NewMockProviderFromFile(path string) (*MockProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %q: %w", path, err)
	}

	var scenario MockScenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %q: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", path)
	}

	return &MockProvider{
		name:  scenario.Name,
		steps: scenario.Steps,
	}, nil
}

// Chat implements Provider.Chat by replaying the next scripted step.
func (m *MockProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, MockRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		ToolCount:    len(tools),
	})

	if len(m.steps) == 0 {
		return nil, fmt.Errorf("mock provider has no steps")
	}

	idx := m.requestCount
	if idx >= len(m.steps) {
		idx = len(m.steps) - 1
	}
	m.requestCount++

	step := m.steps[idx]
	if step.Err != "" {
		return nil, fmt.Errorf("%s", step.Err)
	}

	resp := &Response{
		Content:    step.Text,
		StopReason: StopReasonEndTurn,
		Usage:      Usage{InputTokens: 10, OutputTokens: 20},
	}

	for i, call := range step.ToolCalls {
		input, err := json.Marshal(call.Input)
		if err != nil {
			return nil, fmt.Errorf("invalid scripted tool input for %s: %w", call.Name, err)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolUseBlock{
			ID:    fmt.Sprintf("mock-tool-%d-%d", m.requestCount, i),
			Name:  call.Name,
			Input: input,
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = StopReasonToolUse
	}

	return resp, nil
}

// Name implements Provider.Name.
func (m *MockProvider) Name() string {
	return "mock"
}

// Model implements Provider.Model.
func (m *MockProvider) Model() string {
	return fmt.Sprintf("mock:%s", m.name)
}

// RequestCount returns how many Chat calls the provider has served.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

var _ Provider = (*MockProvider)(nil)
