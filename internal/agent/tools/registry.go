// Package tools provides tool registry and execution for the kubepilot agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/helm"
	"github.com/kubepilot/kubepilot/internal/logging"
	"k8s.io/client-go/kubernetes"
)

const (
	// MaxToolResponseBytes is the maximum size of a tool response in bytes.
	// Responses larger than this are truncated to prevent context overflow.
	// 50KB is a reasonable limit (~12,500 tokens at 4 chars/token).
	MaxToolResponseBytes = 50 * 1024
)

// Tool defines the interface for agent tools.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns JSON Schema for input validation.
	InputSchema() map[string]interface{}

	// Execute runs the tool with given input.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result represents the output of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool `json:"success"`

	// Data contains the tool's output (tool-specific structure)
	Data interface{} `json:"data,omitempty"`

	// Error contains error details if Success is false
	Error string `json:"error,omitempty"`

	// Summary is a brief description of what happened (for display)
	Summary string `json:"summary,omitempty"`

	// ExecutionTimeMs is how long the tool took to run
	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

// truncatedData is used when tool output exceeds MaxToolResponseBytes.
type truncatedData struct {
	Truncated      bool   `json:"_truncated"`
	OriginalBytes  int    `json:"_original_bytes"`
	TruncatedBytes int    `json:"_truncated_bytes"`
	TruncationNote string `json:"_truncation_note"`
	PartialData    string `json:"partial_data"`
}

// truncateResult caps the result data at maxBytes to prevent context overflow.
func truncateResult(result *Result, maxBytes int) *Result {
	if result == nil || result.Data == nil {
		return result
	}

	dataBytes, err := json.Marshal(result.Data)
	if err != nil {
		return result
	}

	if len(dataBytes) <= maxBytes {
		return result
	}

	// Keep the first ~80% of the allowed bytes as partial data for context.
	partialDataBytes := maxBytes * 80 / 100
	partialData := string(dataBytes)
	if len(partialData) > partialDataBytes {
		partialData = partialData[:partialDataBytes]
	}

	truncated := &truncatedData{
		Truncated:      true,
		OriginalBytes:  len(dataBytes),
		TruncatedBytes: maxBytes,
		TruncationNote: fmt.Sprintf("Response truncated from %d to ~%d bytes to prevent context overflow. Consider using more specific filters to reduce result size.", len(dataBytes), maxBytes),
		PartialData:    partialData,
	}

	summary := result.Summary
	if summary != "" {
		summary = fmt.Sprintf("%s [TRUNCATED: %d→%d bytes]", summary, len(dataBytes), maxBytes)
	} else {
		summary = fmt.Sprintf("[TRUNCATED: %d→%d bytes]", len(dataBytes), maxBytes)
	}

	return &Result{
		Success:         result.Success,
		Data:            truncated,
		Error:           result.Error,
		Summary:         summary,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
}

// Registry manages tool registration and discovery.
type Registry struct {
	tools  map[string]Tool
	order  []string
	mu     sync.RWMutex
	logger *logging.Logger
}

// Dependencies contains the external dependencies needed by tools.
type Dependencies struct {
	Kube kubernetes.Interface
	Helm helm.Client

	// HelmNamespace is the namespace assumed by Helm tools when a call
	// does not name one.
	HelmNamespace string

	Logger *logging.Logger
}

// NewRegistry creates a new tool registry with the provided dependencies.
// Tool groups are registered only when their dependency is present, so a
// registry without a Helm client simply lacks the Helm tools.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: deps.Logger,
	}

	if r.logger == nil {
		r.logger = logging.GetLogger("agent.tools")
	}

	if deps.Kube != nil {
		r.register(&ListPodsTool{kube: deps.Kube})
		r.register(&DescribePodTool{kube: deps.Kube})
		r.register(&PodLogsTool{kube: deps.Kube})
		r.register(&DiagnosePodTool{kube: deps.Kube})
		r.register(&ListNodesTool{kube: deps.Kube})
		r.register(&DescribeNodeTool{kube: deps.Kube})
		r.register(&ListServicesTool{kube: deps.Kube})
		r.register(&ListDeploymentsTool{kube: deps.Kube})
		r.register(&ListJobsTool{kube: deps.Kube})
		r.register(&ListEventsTool{kube: deps.Kube})
	}

	if deps.Helm != nil {
		r.register(&HelmListReleasesTool{helm: deps.Helm})
		r.register(&HelmReleaseStatusTool{helm: deps.Helm, defaultNamespace: deps.HelmNamespace})
	}

	return r
}

// register adds a tool to the registry, replacing any previous tool with the
// same name.
func (r *Registry) register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Register adds a custom tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.register(tool)
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns tool definitions for the model call, in registration order.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, provider.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// Execute runs the named tool and renders its result as text for the model.
// Tool-level failures never surface as errors: unknown tools, panics inside
// tools, and execution errors are all rendered into the result text so the
// model-calling layer sees a plain tool result.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (content string, isError bool) {
	tool, ok := r.Get(name)
	if !ok {
		r.logger.Warn("unknown tool requested: %s", name)
		return renderResult(&Result{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", name),
		}), true
	}

	start := time.Now()
	result := r.executeSafely(ctx, tool, input)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	result = truncateResult(result, MaxToolResponseBytes)

	r.logger.DebugWithFields("tool executed",
		logging.Field("tool", name),
		logging.Field("success", result.Success),
		logging.Field("duration_ms", result.ExecutionTimeMs),
	)

	return renderResult(result), !result.Success
}

// executeSafely invokes the tool, converting errors and panics into failed results.
func (r *Registry) executeSafely(ctx context.Context, tool Tool, input json.RawMessage) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked: %v", tool.Name(), rec)
			result = &Result{
				Success: false,
				Error:   fmt.Sprintf("tool %s panicked: %v", tool.Name(), rec),
			}
		}
	}()

	res, err := tool.Execute(ctx, input)
	if err != nil {
		return &Result{
			Success: false,
			Error:   err.Error(),
		}
	}
	if res == nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("tool %s returned no result", tool.Name()),
		}
	}
	return res
}

// renderResult marshals a result for the model. Marshal failures degrade to
// a plain error string rather than propagating.
func renderResult(result *Result) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to render tool result: %v"}`, err)
	}
	return string(data)
}
