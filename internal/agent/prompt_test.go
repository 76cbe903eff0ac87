package agent

import (
	"strings"
	"testing"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

func TestSystemPromptCarriesWorkflowRules(t *testing.T) {
	p := SystemPrompt()

	for _, want := range []string{
		"one tool per turn",
		"unmasked PII",
		"Never call the same tool twice",
		"make_final_decision",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing rule %q", want)
		}
	}
	if !strings.Contains(p, `recommend "manual_review"`) {
		t.Errorf("PII rule must route to manual_review")
	}
}

func TestUserPromptIncludesClaimContext(t *testing.T) {
	p := UserPrompt(claim.Context{
		ClaimID:      "c-1",
		ClaimNumber:  "CLM-0001",
		ClaimType:    "auto",
		UserID:       "u-9",
		DocumentPath: "/docs/claim.pdf",
	})

	for _, want := range []string{"c-1", "CLM-0001", "auto", "u-9", "/docs/claim.pdf"} {
		if !strings.Contains(p, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}
