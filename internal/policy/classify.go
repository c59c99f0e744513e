package policy

import "pickdesk/internal/models"

// Classify applies the classification precedence. The order is load-bearing:
// a halted guardrail forces blocked before any gate result is consulted, so a
// system-wide stop cannot be bypassed by a strong individual signal. A
// monitor-only quality tier caps the result at no_bet regardless of gates.
// Warn results count as passing; they exist for observability only.
func Classify(quality QualityLevel, guardrailHalted bool, results []models.GateResult) string {
	if guardrailHalted {
		return models.DecisionStatusBlocked
	}
	if quality != QualityFull {
		return models.DecisionStatusNoBet
	}
	for _, r := range results {
		if r.Status == GateStatusFail {
			return models.DecisionStatusNoBet
		}
	}
	return models.DecisionStatusPick
}
