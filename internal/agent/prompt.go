package agent

import (
	"fmt"
	"strings"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

// systemPrompt fixes the workflow the model must follow. Tool order
// matters: evidence gathering precedes the terminal decision call.
const systemPrompt = `You are an insurance claim processing agent. Process the claim by calling the available tools, one at a time, in a sensible order:

1. ocr_document: extract the content of the claim document.
2. check_guardrails: validate the extracted content for fraud signals and policy violations.
3. retrieve_user_info: load the claimant's contract and coverage limits.
4. retrieve_similar_claims: find precedent claims to ground your decision.
5. make_final_decision: record your recommendation. Call this exactly once, as your last action.

Rules:
- Call at most one tool per turn and wait for its result before the next.
- If a tool fails, continue with the remaining tools rather than retrying it forever.
- If check_guardrails reports unmasked PII, stop gathering evidence and recommend "manual_review".
- Never call the same tool twice.
- Recommend "approve" only when the document, guardrails and coverage all support it.
- Recommend "deny" when coverage clearly excludes the claim or guardrails flag fraud.
- Recommend "manual_review" whenever the evidence is incomplete or contradictory.
- Confidence must honestly reflect the evidence you gathered, from 0.0 to 1.0.`

// SystemPrompt returns the fixed system instructions for a run.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt builds the opening user message from the claim context.
func UserPrompt(c claim.Context) string {
	return fmt.Sprintf(
		"Process insurance claim %s (claim number %s).\nClaim type: %s\nClaimant: %s\nDocument location: %s\n\nGather the evidence with the tools, then record your final decision.",
		c.ClaimID, c.ClaimNumber, c.ClaimType, c.UserID, c.DocumentPath,
	)
}

// qaSystemPrompt frames a reviewer's single-turn question about a claim
// already analyzed by the agent.
const qaSystemPrompt = `You are an insurance claim processing agent answering a human reviewer's question about a claim you analyzed. Answer concisely, grounded in the claim facts and the recorded recommendation. If the facts provided do not answer the question, say so instead of guessing.`

// QASystemPrompt returns the fixed instructions for reviewer Q&A turns.
func QASystemPrompt() string {
	return qaSystemPrompt
}

// QAUserPrompt builds a reviewer question message over the claim context
// and, when present, the recorded decision.
func QAUserPrompt(c claim.Context, d *claim.Decision, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim %s (claim number %s), type %s, claimant %s, document %s.\n",
		c.ClaimID, c.ClaimNumber, c.ClaimType, c.UserID, c.DocumentPath)
	if d != nil {
		fmt.Fprintf(&b, "Recorded recommendation: %s (confidence %.2f).\nReasoning: %s\n",
			d.Recommendation, d.Confidence, d.Reasoning)
	}
	fmt.Fprintf(&b, "\nReviewer question: %s", question)
	return b.String()
}
