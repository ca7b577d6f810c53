package loop

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/agent/tools"
	"github.com/kubepilot/kubepilot/internal/format"
	"github.com/kubepilot/kubepilot/internal/logging"
	"github.com/kubepilot/kubepilot/internal/metrics"
)

// State is the terminal state of one loop invocation.
type State string

const (
	// StateAccepted means the evaluator approved a draft before the
	// iteration budget ran out.
	StateAccepted State = "ACCEPTED"

	// StateExhausted means the iteration budget ran out and the last draft
	// was accepted unconditionally, without evaluation.
	StateExhausted State = "EXHAUSTED"

	// StateFailed means generation exhausted its retries and no draft was
	// ever produced.
	StateFailed State = "FAILED"
)

// Verdict is the evaluator's judgment of one draft.
type Verdict struct {
	Pass     bool
	Raw      string
	Feedback string
}

// IterationRecord captures one pass of the loop. Verdict is nil on the final
// iteration, which is accepted without evaluation.
type IterationRecord struct {
	Index   int
	Draft   string
	Verdict *Verdict
}

// Result is the outcome of one Invoke call. Response always satisfies the
// normalizer's validity predicate, on the failure path included: callers can
// render it without inspecting Err.
type Result struct {
	Response   string
	State      State
	Iterations []IterationRecord

	// Err is set only when State is StateFailed. It is the underlying
	// generation failure, surfaced for logging; the user-visible message is
	// already embedded in Response.
	Err error
}

// Options configures an Orchestrator.
type Options struct {
	// Generator produces drafts. Required.
	Generator provider.Provider

	// Evaluator judges drafts. When nil the Generator provider is used for
	// both roles.
	Evaluator provider.Provider

	// Registry supplies the cluster tools available during generation.
	// Optional.
	Registry *tools.Registry

	// MaxIterations bounds loop passes and generation retry attempts.
	// Defaults to 3.
	MaxIterations int

	// MaxRetries bounds evaluation attempts per draft. Defaults to 3.
	MaxRetries int

	// Backoff is the retry delay policy shared by both calls.
	Backoff Backoff

	// SystemPrompt overrides the built-in generation system prompt. It can
	// be swapped at runtime via SetSystemPrompt (prompt file hot-reload).
	SystemPrompt string

	// Metrics is optional instrumentation.
	Metrics *metrics.Metrics

	Logger *logging.Logger
}

// Orchestrator drives the evaluator-optimizer loop: generate a draft,
// judge it, feed the critique back into the next generation, and stop on
// approval or when the iteration budget runs out. One invocation is fully
// sequential; concurrent invocations are independent.
type Orchestrator struct {
	gen           *generator
	eval          *evaluator
	maxIterations int
	systemPrompt  atomic.Value // string
	metrics       *metrics.Metrics
	logger        *logging.Logger
	tracer        trace.Tracer
}

// SetSystemPrompt swaps the generation system prompt at runtime. An empty
// value restores the built-in prompt.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	if prompt == "" {
		prompt = generationSystemPrompt
	}
	o.systemPrompt.Store(prompt)
}

// New creates an Orchestrator from options, filling in defaults.
func New(opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = opts.Generator
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("agent.loop")
	}

	o := &Orchestrator{
		maxIterations: opts.MaxIterations,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		tracer:        otel.Tracer("kubepilot/loop"),
	}
	o.SetSystemPrompt(opts.SystemPrompt)

	o.gen = &generator{
		provider:     opts.Generator,
		registry:     opts.Registry,
		systemPrompt: func() string { return o.systemPrompt.Load().(string) },
		maxAttempts:  opts.MaxIterations,
		backoff:      opts.Backoff,
		sleep:        defaultSleeper,
		logger:       opts.Logger.WithName("generator"),
	}
	o.eval = &evaluator{
		provider:   opts.Evaluator,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		sleep:      defaultSleeper,
		logger:     opts.Logger.WithName("evaluator"),
	}
	return o
}

// Invoke runs the full loop for one request and returns the normalized
// response. It never returns raw failures as text: when generation is
// exhausted the response is a user-facing error message in the same
// container format as a successful answer.
func (o *Orchestrator) Invoke(ctx context.Context, request string) *Result {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "assistant.invoke",
		trace.WithAttributes(attribute.Int("request.chars", len(request))))
	defer span.End()
	if sc := span.SpanContext(); sc.IsValid() {
		ctx = logging.ContextWithTrace(ctx, sc.TraceID().String(), sc.SpanID().String())
	}

	result := o.run(ctx, request)
	result.Response = format.Normalize(result.Response)

	span.SetAttributes(
		attribute.String("loop.state", string(result.State)),
		attribute.Int("loop.iterations", len(result.Iterations)),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
	}

	o.logger.WithContext(ctx).InfoWithFields("request completed",
		logging.Field("state", string(result.State)),
		logging.Field("iterations", len(result.Iterations)),
		logging.Field("duration_ms", time.Since(start).Milliseconds()),
	)
	if o.metrics != nil {
		o.metrics.ObserveInvocation(string(result.State), len(result.Iterations), time.Since(start))
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, request string) *Result {
	result := &Result{}

	// verdictTrace accumulates raw verdict text; feedback for the next
	// iteration is whatever follows the final FEEDBACK: marker in it.
	var verdictTrace strings.Builder
	var lastDraft string

	for i := 1; i <= o.maxIterations; i++ {
		iterCtx, iterSpan := o.tracer.Start(ctx, "assistant.iteration",
			trace.WithAttributes(attribute.Int("loop.iteration", i)))

		prompt := request
		if i > 1 {
			prompt = buildRetryPrompt(request, lastDraft, extractFeedback(verdictTrace.String()))
		}

		draft, err := o.gen.generate(iterCtx, prompt)
		if err != nil {
			iterSpan.RecordError(err)
			iterSpan.End()
			o.logger.ErrorWithErr("generation exhausted on iteration %d", err, i)
			result.State = StateFailed
			result.Err = err
			result.Response = errorResponse()
			return result
		}
		lastDraft = draft
		if o.metrics != nil {
			o.metrics.IncIteration()
		}

		record := IterationRecord{Index: i, Draft: draft}

		if i == o.maxIterations {
			// Final iteration: accept unconditionally to bound latency.
			iterSpan.End()
			result.Iterations = append(result.Iterations, record)
			result.State = StateExhausted
			result.Response = draft
			return result
		}

		verdictText := o.eval.evaluate(iterCtx, request, draft)
		verdictTrace.WriteString(verdictText)
		verdictTrace.WriteString("\n")

		verdict := &Verdict{
			Pass:     isPass(verdictText),
			Raw:      verdictText,
			Feedback: extractFeedback(verdictText),
		}
		record.Verdict = verdict
		result.Iterations = append(result.Iterations, record)

		if o.metrics != nil {
			o.metrics.IncVerdict(verdict.Pass)
		}
		iterSpan.SetAttributes(attribute.Bool("verdict.pass", verdict.Pass))
		iterSpan.End()

		if verdict.Pass {
			result.State = StateAccepted
			result.Response = draft
			return result
		}

		o.logger.DebugWithFields("draft needs improvement",
			logging.Field("iteration", i),
			logging.Field("feedback", verdict.Feedback),
		)
	}

	// Unreachable: the final iteration returns inside the loop.
	result.State = StateExhausted
	result.Response = lastDraft
	return result
}

// errorResponse is the user-visible message for a failed invocation, in the
// same container format as a successful answer. The underlying error stays
// in logs, not in the response body.
func errorResponse() string {
	return fmt.Sprintf(`%s
<p><strong>Sorry, I could not complete this request.</strong></p>
<p>The assistant was unable to produce an answer after several attempts. Please try again in a moment.</p>
%s`, format.ContainerOpen, format.ContainerClose)
}
