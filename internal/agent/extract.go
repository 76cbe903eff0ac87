package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

var (
	fencedJSONRe       = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	statedConfidenceRe = regexp.MustCompile(`(?i)confidence[:\s]+([0-9]+(?:\.[0-9]+)?)\s*%?`)
)

// decisionWire accepts every key spelling the model has been observed to
// emit for a decision object.
type decisionWire struct {
	Recommendation   string          `json:"recommendation"`
	Decision         string          `json:"decision"`
	Confidence       json.RawMessage `json:"confidence"`
	ConfidenceScore  json.RawMessage `json:"confidence_score"`
	Reasoning        string          `json:"reasoning"`
	Explanation      string          `json:"explanation"`
	RelevantPolicies []string        `json:"relevant_policies"`
	Policies         []string        `json:"policies"`
	EstimatedAmount  *float64        `json:"estimated_amount"`
	EstimatedCover   *float64        `json:"estimated_coverage_amount"`
	Coverage         *float64        `json:"coverage"`
}

// Extract produces a decision record from free-form model output. It is
// total: any input, including empty or malformed text, yields a record
// with a recommendation and a confidence in [0, 1].
//
// Three tiers, first success wins:
//  1. a JSON object found in a code fence or by balanced-brace scan
//  2. approval/denial keyword inference at moderate confidence
//  3. manual_review at confidence 0 with the raw text as reasoning
func Extract(text string) claim.Decision {
	if d, ok := extractJSON(text); ok {
		return d
	}
	if d, ok := inferFromKeywords(text); ok {
		return d
	}

	d := claim.Decision{
		Recommendation: claim.RecommendManualReview,
		Confidence:     0,
		Reasoning:      text,
		DecidedAt:      time.Now().UTC(),
	}
	d.Normalize()
	return d
}

// DecisionFromArguments parses the terminal tool's arguments into a
// decision record, tolerating the same key synonyms as free-text
// extraction. A payload with no recognizable recommendation resolves to
// manual_review, never to approve.
func DecisionFromArguments(args json.RawMessage) claim.Decision {
	if d, ok := decodeDecision(args); ok {
		return d
	}
	d := claim.Decision{
		Recommendation: claim.RecommendManualReview,
		Confidence:     0,
		Reasoning:      string(args),
		DecidedAt:      time.Now().UTC(),
	}
	d.Normalize()
	return d
}

// extractJSON tries tier 1: fenced JSON first, then a balanced-brace
// object anywhere in the text that carries a recommendation-like key.
func extractJSON(text string) (claim.Decision, bool) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if d, ok := decodeDecision([]byte(m[1])); ok {
			return d, true
		}
	}

	for _, candidate := range balancedObjects(text) {
		if !strings.Contains(candidate, "recommendation") && !strings.Contains(candidate, "\"decision\"") {
			continue
		}
		if d, ok := decodeDecision([]byte(candidate)); ok {
			return d, true
		}
	}
	return claim.Decision{}, false
}

// balancedObjects returns every top-level {...} substring with balanced
// braces, skipping braces inside JSON strings.
func balancedObjects(text string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

func decodeDecision(raw []byte) (claim.Decision, bool) {
	var w decisionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return claim.Decision{}, false
	}

	rec := w.Recommendation
	if rec == "" {
		rec = w.Decision
	}
	if rec == "" {
		return claim.Decision{}, false
	}

	d := claim.Decision{
		Recommendation:   claim.ParseRecommendation(rec),
		Confidence:       parseConfidence(firstRaw(w.Confidence, w.ConfidenceScore)),
		Reasoning:        firstNonEmpty(w.Reasoning, w.Explanation),
		RelevantPolicies: w.RelevantPolicies,
		DecidedAt:        time.Now().UTC(),
	}
	if d.RelevantPolicies == nil {
		d.RelevantPolicies = w.Policies
	}
	d.EstimatedAmount = w.EstimatedAmount
	if d.EstimatedAmount == nil {
		d.EstimatedAmount = w.EstimatedCover
	}
	if d.EstimatedAmount == nil {
		d.EstimatedAmount = w.Coverage
	}
	d.Normalize()
	return d, true
}

// parseConfidence coerces a confidence value that may arrive as a JSON
// number, a numeric string, or a percentage string ("92%"). Values above
// 1 are read as percentages.
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(s)
		percent := strings.HasSuffix(s, "%")
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
		if percent {
			f /= 100
		}
	}
	if f > 1 {
		f /= 100
	}
	return f
}

// inferFromKeywords tries tier 2: vocabulary scanning at moderate
// confidence. Review vocabulary wins over approve/deny so hedged output
// ("needs review before approval") routes to a human. A stated
// "confidence: NN%" in the text replaces the default confidence.
func inferFromKeywords(text string) (claim.Decision, bool) {
	lower := strings.ToLower(text)

	var rec claim.Recommendation
	var conf float64
	switch {
	case strings.Contains(lower, "manual review") || strings.Contains(lower, "human review") || strings.Contains(lower, "needs review") || strings.Contains(lower, "further review"):
		rec, conf = claim.RecommendManualReview, 0.5
	case strings.Contains(lower, "deny") || strings.Contains(lower, "denied") || strings.Contains(lower, "reject"):
		rec, conf = claim.RecommendDeny, 0.6
	case strings.Contains(lower, "approve") || strings.Contains(lower, "approved"):
		rec, conf = claim.RecommendApprove, 0.6
	default:
		return claim.Decision{}, false
	}

	if stated, ok := statedConfidence(text); ok {
		conf = stated
	}

	d := claim.Decision{
		Recommendation: rec,
		Confidence:     conf,
		Reasoning:      text,
		DecidedAt:      time.Now().UTC(),
	}
	d.Normalize()
	return d, true
}

// statedConfidence scans free text for an explicit "confidence: NN" or
// "confidence: NN%" claim. Values above 1 are read as percentages.
func statedConfidence(text string) (float64, bool) {
	m := statedConfidenceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if f > 1 {
		f /= 100
	}
	return f, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}
