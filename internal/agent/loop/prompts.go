package loop

import (
	"fmt"
	"strings"
)

// generationSystemPrompt governs the assistant's behavior and output format.
// The format contract matches what the normalizer validates, so well-behaved
// generations pass through normalization unchanged.
const generationSystemPrompt = `You are kubepilot, a Kubernetes operations assistant. You answer
questions about the state of a cluster using the tools available to you.

Rules:
- Use tools to inspect the cluster before answering; never invent resource
  names, counts, or states.
- When a resource is unhealthy, report the concrete evidence (waiting reason,
  exit code, restart count, events) and the most likely cause.
- Be concise. Lead with the answer, then supporting detail.
- If a tool fails or the cluster is unreachable, say so plainly and report
  what you could determine.

Output format (mandatory):
- Respond with HTML wrapped in a single <div class="assistant-response">
  container.
- Use <h3>/<h4>/<h5> for headings, <p> for paragraphs, <ul><li> for lists,
  <pre><code> for command or manifest blocks, <code> for inline identifiers,
  and <strong>/<em> for emphasis.
- Do not use markdown syntax in the final answer.`

// evaluationSystemPrompt instructs the judge model.
const evaluationSystemPrompt = `You are a strict reviewer of answers produced by a Kubernetes
operations assistant. Judge whether the draft answers the user's request
accurately, completely, and in the required HTML format.

Respond in exactly this structure:

RATING: PASS
FEEDBACK: <one sentence confirming adequacy>

or

RATING: NEEDS_IMPROVEMENT
FEEDBACK: <specific, actionable problems the next draft must fix>`

const (
	ratingPassMarker = "RATING: PASS"
	feedbackMarker   = "FEEDBACK:"
)

// buildEvaluationPrompt composes the judge's user prompt from the original
// request and the current draft.
func buildEvaluationPrompt(request, draft string) string {
	var b strings.Builder
	b.WriteString("User request:\n")
	b.WriteString(request)
	b.WriteString("\n\nDraft answer:\n")
	b.WriteString(draft)
	b.WriteString("\n\nEvaluate the draft.")
	return b.String()
}

// buildRetryPrompt composes the generation prompt for iterations after the
// first: the original request, the previous draft, and the evaluator's
// feedback.
func buildRetryPrompt(request, previousDraft, feedback string) string {
	return fmt.Sprintf(`Original request:
%s

Your previous answer:
%s

Reviewer feedback:
%s

Produce an improved answer that addresses the feedback. Answer the original
request in full; do not refer to the previous answer or the review.`, request, previousDraft, feedback)
}

// extractFeedback returns the text after the final FEEDBACK: marker in the
// verdict, or the empty string when the marker is absent.
func extractFeedback(verdict string) string {
	idx := strings.LastIndex(verdict, feedbackMarker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(verdict[idx+len(feedbackMarker):])
}

// isPass reports whether the verdict text accepts the draft. Anything that
// does not contain the literal PASS marker, malformed verdicts included, is
// treated as needing improvement.
func isPass(verdict string) bool {
	return strings.Contains(verdict, ratingPassMarker)
}
