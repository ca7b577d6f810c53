package loop

import (
	"context"

	"github.com/kubepilot/kubepilot/internal/agent/provider"
	"github.com/kubepilot/kubepilot/internal/logging"
)

// syntheticPassVerdict is returned when the judge cannot be reached. The
// loop must keep making forward progress, so evaluation failure degrades to
// an annotated PASS rather than an error.
const syntheticPassVerdict = "RATING: PASS\nFEEDBACK: Evaluation was unavailable; the draft was accepted without review."

// evaluator asks a judge model to rate a draft against the original request.
type evaluator struct {
	provider   provider.Provider
	maxRetries int
	backoff    Backoff
	sleep      sleeper
	logger     *logging.Logger
}

// evaluate returns the judge's free-text verdict. Transient judge failures
// are retried with backoff; after maxRetries the synthetic PASS verdict is
// returned and no error ever propagates to the caller.
func (e *evaluator) evaluate(ctx context.Context, request, draft string) string {
	prompt := buildEvaluationPrompt(request, draft)

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		resp, err := e.provider.Chat(ctx, evaluationSystemPrompt, []provider.Message{
			{Role: provider.RoleUser, Content: prompt},
		}, nil)
		if err == nil {
			return resp.Content
		}

		e.logger.WarnWithFields("evaluation attempt failed",
			logging.Field("attempt", attempt),
			logging.Field("max_retries", e.maxRetries),
			logging.Field("error", err.Error()),
		)

		if attempt == e.maxRetries {
			break
		}
		if serr := e.sleep(ctx, e.backoff.Delay(attempt)); serr != nil {
			break
		}
	}

	e.logger.Warn("evaluation exhausted %d attempts, accepting draft without review", e.maxRetries)
	return syntheticPassVerdict
}
