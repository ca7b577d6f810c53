package loop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/agent/tools"
	"github.com/kubepilot/kubepilot/internal/format"
)

const passVerdict = "RATING: PASS\nFEEDBACK: The answer is accurate and well formatted."
const failVerdict = "RATING: NEEDS_IMPROVEMENT\nFEEDBACK: Include the restart counts."

// noSleep replaces real backoff waits with a recorder.
func noSleep(recorded *[]time.Duration) sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if recorded != nil {
			*recorded = append(*recorded, d)
		}
		return nil
	}
}

func newTestOrchestrator(gen, eval *provider.MockProvider, sleeps *[]time.Duration) *Orchestrator {
	o := New(Options{
		Generator:     gen,
		Evaluator:     eval,
		MaxIterations: 3,
		MaxRetries:    3,
	})
	o.gen.sleep = noSleep(sleeps)
	o.eval.sleep = noSleep(nil)
	return o
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))

	capped := Backoff{Base: time.Second, Cap: 5 * time.Second}
	assert.Equal(t, 4*time.Second, capped.Delay(2))
	assert.Equal(t, 5*time.Second, capped.Delay(3))
	assert.Equal(t, 5*time.Second, capped.Delay(10))

	// monotonically non-decreasing
	prev := time.Duration(0)
	for n := 0; n < 12; n++ {
		d := capped.Delay(n)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestInvokeAcceptsOnFirstPass(t *testing.T) {
	gen := provider.NewMockProvider(provider.MockStep{Text: "All pods in default are running."})
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods in default")

	assert.Equal(t, StateAccepted, result.State)
	require.Len(t, result.Iterations, 1)
	assert.Equal(t, 1, result.Iterations[0].Index)
	require.NotNil(t, result.Iterations[0].Verdict)
	assert.True(t, result.Iterations[0].Verdict.Pass)
	assert.Equal(t, 1, gen.RequestCount())
	assert.Equal(t, 1, eval.RequestCount())
	assert.True(t, format.IsNormalized(result.Response))
	assert.NoError(t, result.Err)
}

func TestInvokeExhaustsIterationsWithoutFinalEvaluation(t *testing.T) {
	gen := provider.NewMockProvider(
		provider.MockStep{Text: "draft one"},
		provider.MockStep{Text: "draft two"},
		provider.MockStep{Text: "draft three"},
	)
	eval := provider.NewMockProvider(provider.MockStep{Text: failVerdict})
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "why is my deployment degraded")

	assert.Equal(t, StateExhausted, result.State)
	require.Len(t, result.Iterations, 3)

	// exactly MaxIterations generations, MaxIterations-1 evaluations
	assert.Equal(t, 3, gen.RequestCount())
	assert.Equal(t, 2, eval.RequestCount())

	// the final iteration is accepted unconditionally, no verdict
	assert.NotNil(t, result.Iterations[0].Verdict)
	assert.NotNil(t, result.Iterations[1].Verdict)
	assert.Nil(t, result.Iterations[2].Verdict)

	assert.Contains(t, result.Response, "draft three")
	assert.True(t, format.IsNormalized(result.Response))
}

func TestRetryPromptCarriesRequestDraftAndFeedback(t *testing.T) {
	gen := provider.NewMockProvider(
		provider.MockStep{Text: "first draft"},
		provider.MockStep{Text: "second draft"},
	)
	eval := provider.NewMockProvider(
		provider.MockStep{Text: failVerdict},
		provider.MockStep{Text: passVerdict},
	)
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list failing pods")
	assert.Equal(t, StateAccepted, result.State)

	require.Len(t, gen.Requests, 2)
	retryPrompt := gen.Requests[1].Messages[0].Content
	assert.Contains(t, retryPrompt, "list failing pods")
	assert.Contains(t, retryPrompt, "first draft")
	assert.Contains(t, retryPrompt, "Include the restart counts.")
}

func TestGenerationRetriesWithBackoffThenSucceeds(t *testing.T) {
	gen := provider.NewMockProvider(
		provider.MockStep{Err: "connection reset"},
		provider.MockStep{Err: "connection reset"},
		provider.MockStep{Text: "recovered answer"},
	)
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})

	var sleeps []time.Duration
	o := newTestOrchestrator(gen, eval, &sleeps)

	result := o.Invoke(context.Background(), "list pods")

	assert.Equal(t, StateAccepted, result.State)
	assert.Contains(t, result.Response, "recovered answer")

	backoff := DefaultBackoff()
	require.Len(t, sleeps, 2)
	assert.Equal(t, backoff.Delay(1), sleeps[0])
	assert.Equal(t, backoff.Delay(2), sleeps[1])
}

func TestGenerationExhaustionReturnsErrorContainer(t *testing.T) {
	gen := provider.NewMockProvider(provider.MockStep{Err: "model unavailable"})
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods")

	assert.Equal(t, StateFailed, result.State)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "model unavailable")

	// the user-visible message is a normal normalized response, no stack trace
	assert.True(t, format.IsNormalized(result.Response))
	assert.Contains(t, result.Response, "could not complete this request")
	assert.NotContains(t, result.Response, "model unavailable")
	assert.Empty(t, result.Iterations)
}

func TestEmptyDraftIsRetried(t *testing.T) {
	gen := provider.NewMockProvider(
		provider.MockStep{Text: ""},
		provider.MockStep{Text: "real answer"},
	)
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})

	var sleeps []time.Duration
	o := newTestOrchestrator(gen, eval, &sleeps)

	result := o.Invoke(context.Background(), "list pods")

	assert.Equal(t, StateAccepted, result.State)
	assert.Contains(t, result.Response, "real answer")
	assert.Len(t, sleeps, 1)
}

func TestEvaluatorFailureDowngradesToSyntheticPass(t *testing.T) {
	gen := provider.NewMockProvider(provider.MockStep{Text: "draft"})
	eval := provider.NewMockProvider(provider.MockStep{Err: "judge unavailable"})
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods")

	// evaluation failure must never abort the loop
	assert.Equal(t, StateAccepted, result.State)
	assert.NoError(t, result.Err)
	assert.Equal(t, 3, eval.RequestCount())

	require.Len(t, result.Iterations, 1)
	require.NotNil(t, result.Iterations[0].Verdict)
	assert.True(t, result.Iterations[0].Verdict.Pass)
	assert.Contains(t, result.Iterations[0].Verdict.Feedback, "Evaluation was unavailable")
}

func TestMalformedVerdictTreatedAsNeedsImprovement(t *testing.T) {
	gen := provider.NewMockProvider(
		provider.MockStep{Text: "draft one"},
		provider.MockStep{Text: "draft two"},
	)
	eval := provider.NewMockProvider(
		provider.MockStep{Text: "I think this looks mostly fine?"},
		provider.MockStep{Text: passVerdict},
	)
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods")

	assert.Equal(t, StateAccepted, result.State)
	require.Len(t, result.Iterations, 2)
	assert.False(t, result.Iterations[0].Verdict.Pass)
	// malformed verdict text is carried forward verbatim
	assert.Equal(t, "I think this looks mostly fine?", result.Iterations[0].Verdict.Raw)
}

func TestToolCallsDispatchedDuringGeneration(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "nginx", Namespace: "default"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	registry := tools.NewRegistry(tools.Dependencies{Kube: fake.NewSimpleClientset(pod)})

	gen := provider.NewMockProvider(
		provider.MockStep{ToolCalls: []provider.MockToolCall{
			{Name: "list_pods", Input: map[string]interface{}{"namespace": "default"}},
		}},
		provider.MockStep{Text: "There is one pod, nginx, in Running state."},
	)
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})
	o := New(Options{
		Generator:     gen,
		Evaluator:     eval,
		Registry:      registry,
		MaxIterations: 3,
		MaxRetries:    3,
	})
	o.gen.sleep = noSleep(nil)
	o.eval.sleep = noSleep(nil)

	result := o.Invoke(context.Background(), "list pods in default")

	assert.Equal(t, StateAccepted, result.State)
	assert.Contains(t, result.Response, "nginx")

	// second model call carries the assistant tool use and the tool result
	require.Len(t, gen.Requests, 2)
	msgs := gen.Requests[1].Messages
	require.Len(t, msgs, 3)
	assert.NotEmpty(t, msgs[1].ToolUse)
	require.Len(t, msgs[2].ToolResult, 1)
	assert.Contains(t, msgs[2].ToolResult[0].Content, "nginx")
	assert.False(t, msgs[2].ToolResult[0].IsError)
}

func TestUnformattedDraftIsNormalized(t *testing.T) {
	gen := provider.NewMockProvider(provider.MockStep{Text: "Pod: nginx Running\n- no issues found"})
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods in default")

	assert.True(t, strings.HasPrefix(strings.TrimSpace(result.Response), format.ContainerOpen))
	for _, line := range strings.Split(result.Response, "\n") {
		assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "- "), "bare list dash survived: %q", line)
	}
}

func TestExtractFeedback(t *testing.T) {
	assert.Equal(t, "fix the list", extractFeedback("RATING: NEEDS_IMPROVEMENT\nFEEDBACK: fix the list"))
	assert.Equal(t, "", extractFeedback("no marker here"))

	// the final marker wins
	trace := "FEEDBACK: old note\nRATING: NEEDS_IMPROVEMENT\nFEEDBACK: newest note"
	assert.Equal(t, "newest note", extractFeedback(trace))
}

func TestSetSystemPromptSwapsAtRuntime(t *testing.T) {
	gen := provider.NewMockProvider(provider.MockStep{Text: "answer"})
	eval := provider.NewMockProvider(provider.MockStep{Text: passVerdict})
	o := newTestOrchestrator(gen, eval, nil)

	o.SetSystemPrompt("custom instructions")
	o.Invoke(context.Background(), "list pods")
	require.NotEmpty(t, gen.Requests)
	assert.Equal(t, "custom instructions", gen.Requests[0].SystemPrompt)

	// empty restores the built-in prompt
	o.SetSystemPrompt("")
	o.Invoke(context.Background(), "list pods")
	assert.Contains(t, gen.Requests[len(gen.Requests)-1].SystemPrompt, "kubepilot")
}

func TestInvokeEmitsSpansPerIteration(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	gen := provider.NewMockProvider(
		provider.MockStep{Text: "draft one"},
		provider.MockStep{Text: "draft two"},
	)
	eval := provider.NewMockProvider(
		provider.MockStep{Text: failVerdict},
		provider.MockStep{Text: passVerdict},
	)
	o := newTestOrchestrator(gen, eval, nil)

	result := o.Invoke(context.Background(), "list pods")
	require.Equal(t, StateAccepted, result.State)

	var invokes, iterations int
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "assistant.invoke":
			invokes++
		case "assistant.iteration":
			iterations++
		}
	}
	assert.Equal(t, 1, invokes)
	assert.Equal(t, 2, iterations)
}

func TestIsPass(t *testing.T) {
	assert.True(t, isPass("RATING: PASS\nFEEDBACK: fine"))
	assert.False(t, isPass("RATING: NEEDS_IMPROVEMENT"))
	assert.False(t, isPass("RATING: pass"))
	assert.False(t, isPass(""))
}
