package policy

import (
	"errors"
	"fmt"

	"pickdesk/internal/config"
)

// ErrSignalRejected means the input data is not trustworthy enough to reason
// about at all. No decision row is created for a rejected signal, not even a
// blocked one. It is a normal evaluation outcome, not a failure.
var ErrSignalRejected = errors.New("signal rejected")

// QualityVector is the signal quality input, each metric in [0,1].
type QualityVector struct {
	Completeness float64 `json:"completeness"`
	Validity     float64 `json:"validity"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
}

// QualityLevel is the usability tier assigned to a signal.
type QualityLevel int

const (
	// QualityRejected: below the critical failure threshold, unusable.
	QualityRejected QualityLevel = iota
	// QualityMonitorOnly: usable for display, never for a tradable pick.
	QualityMonitorOnly
	// QualityFull: eligible for full gate evaluation.
	QualityFull
)

// Score is the weighted sum of the four metrics. Weights are config-controlled
// and intentionally not normalized; they may not sum to 1.
func Score(v QualityVector, cfg config.QualityConfig) float64 {
	w := cfg.Weights
	return w.Completeness*v.Completeness +
		w.Validity*v.Validity +
		w.Consistency*v.Consistency +
		w.Timeliness*v.Timeliness
}

// AssessQuality validates the vector and places the signal in a tier. An
// out-of-range metric rejects the signal outright rather than scoring garbage.
func AssessQuality(v QualityVector, cfg config.QualityConfig) (float64, QualityLevel, error) {
	for name, m := range map[string]float64{
		"completeness": v.Completeness,
		"validity":     v.Validity,
		"consistency":  v.Consistency,
		"timeliness":   v.Timeliness,
	} {
		if m < 0 || m > 1 {
			return 0, QualityRejected, fmt.Errorf("%w: metric %s=%v outside [0,1]", ErrSignalRejected, name, m)
		}
	}
	score := Score(v, cfg)
	switch {
	case score < cfg.CriticalFailureThreshold:
		return score, QualityRejected, fmt.Errorf("%w: quality score %.4f below critical threshold %.4f",
			ErrSignalRejected, score, cfg.CriticalFailureThreshold)
	case score < cfg.MinimumForScoring:
		return score, QualityMonitorOnly, nil
	default:
		return score, QualityFull, nil
	}
}
