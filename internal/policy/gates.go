package policy

import (
	"fmt"

	"pickdesk/internal/config"
	"pickdesk/internal/models"
)

// Gate names as they appear in decision gate_results payloads.
const (
	GateEdgeWinner    = "edge_winner"
	GateEdgeOverUnder = "edge_over_under"
	GateConfidence    = "confidence"
	GateDrift         = "drift"
)

const (
	GateStatusPass = "pass"
	GateStatusWarn = "warn"
	GateStatusFail = "fail"
)

// GateInput is one match signal's metrics. MarketType selects which edge
// threshold applies; it is an external classification, not computed here.
type GateInput struct {
	Edge       float64
	Confidence float64
	Drift      float64
	MarketType string
}

// EvaluateGates runs the three threshold comparisons. Evaluation is pure:
// it reads only the immutable config and its own input.
func EvaluateGates(in GateInput, cfg config.GatesConfig) ([]models.GateResult, error) {
	var edgeName string
	var edgeGate config.GateThreshold
	switch in.MarketType {
	case models.MarketTypeWinner:
		edgeName, edgeGate = GateEdgeWinner, cfg.EdgeWinner
	case models.MarketTypeOverUnder:
		edgeName, edgeGate = GateEdgeOverUnder, cfg.EdgeOverUnder
	default:
		return nil, fmt.Errorf("unknown market type %q", in.MarketType)
	}

	results := []models.GateResult{
		gteGate(edgeName, in.Edge, edgeGate.Threshold, cfg.WarnMargin),
		gteGate(GateConfidence, in.Confidence, cfg.Confidence.Threshold, cfg.WarnMargin),
		lteGate(GateDrift, in.Drift, cfg.Drift.Threshold, cfg.WarnMargin),
	}
	return results, nil
}

// gteGate passes when value >= threshold; a pass inside the warn margin is
// reported as warn for observability and still counts as passing.
func gteGate(name string, value, threshold, margin float64) models.GateResult {
	status := GateStatusFail
	switch {
	case value >= threshold+margin:
		status = GateStatusPass
	case value >= threshold:
		status = GateStatusWarn
	}
	return models.GateResult{Name: name, Value: value, Threshold: threshold, Status: status}
}

// lteGate passes when value <= threshold (drift: lower is better).
func lteGate(name string, value, threshold, margin float64) models.GateResult {
	status := GateStatusFail
	switch {
	case value <= threshold-margin:
		status = GateStatusPass
	case value <= threshold:
		status = GateStatusWarn
	}
	return models.GateResult{Name: name, Value: value, Threshold: threshold, Status: status}
}
