package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pickdesk/internal/config"
	"pickdesk/internal/guardrail"
	"pickdesk/internal/models"
	"pickdesk/internal/policy"
	"pickdesk/internal/repository"
)

// SignalInput is one match signal ready for evaluation. Edge, confidence and
// drift arrive precomputed; this core only gates them.
type SignalInput struct {
	MatchID     string               `json:"match_id"`
	OwnerUserID string               `json:"owner_user_id"`
	MarketType  string               `json:"market_type"`
	Quality     policy.QualityVector `json:"quality"`
	Edge        float64              `json:"edge"`
	Confidence  float64              `json:"confidence"`
	Drift       float64              `json:"drift"`
}

// DecisionBroadcaster pushes freshly created decisions to live subscribers.
type DecisionBroadcaster interface {
	BroadcastDecision(decision models.Decision)
}

// Evaluator runs the quality gate, the decision gates and the guardrail check
// and persists the resulting decision. Evaluations are stateless and safe to
// run in parallel; the only shared state they touch is the guardrail
// snapshot, which is read atomically.
type Evaluator struct {
	Policy    config.PolicyConfig
	Repo      repository.Repository
	Guardrail *guardrail.Machine
	Logger    *zap.Logger
	Broadcast DecisionBroadcaster

	// Now is factored for tests.
	Now func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Evaluate classifies one signal. A rejected signal returns ErrSignalRejected
// and creates no decision row; that is an expected outcome, not a failure.
// Store errors propagate unmodified.
func (e *Evaluator) Evaluate(ctx context.Context, in SignalInput, traceID string) (*models.Decision, error) {
	if in.MatchID == "" {
		return nil, errors.New("match id required")
	}

	score, level, err := policy.AssessQuality(in.Quality, e.Policy.Quality)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Info("signal rejected",
				zap.String("match_id", in.MatchID),
				zap.Float64("quality_score", score),
				zap.String("trace_id", traceID),
			)
		}
		return nil, err
	}

	results, err := policy.EvaluateGates(policy.GateInput{
		Edge:       in.Edge,
		Confidence: in.Confidence,
		Drift:      in.Drift,
		MarketType: in.MarketType,
	}, e.Policy.Gates)
	if err != nil {
		return nil, err
	}

	// A nil machine or corrupt state reads as halted: absence of guardrail
	// information must never produce a pick.
	snap := e.Guardrail.Snapshot()
	status := policy.Classify(level, snap.Halted, results)

	raw, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}
	decision := models.Decision{
		ID:           uuid.NewString(),
		MatchID:      in.MatchID,
		OwnerUserID:  in.OwnerUserID,
		Status:       status,
		MarketType:   in.MarketType,
		QualityScore: score,
		Edge:         in.Edge,
		Confidence:   in.Confidence,
		Drift:        in.Drift,
		GateResults:  raw,
		TraceID:      traceID,
		CreatedAt:    e.now(),
	}

	if e.Repo != nil {
		if err := e.Repo.InsertDecision(ctx, &decision); err != nil {
			return nil, err
		}
	}

	if e.Logger != nil {
		e.Logger.Info("decision created",
			zap.String("id", decision.ID),
			zap.String("match_id", decision.MatchID),
			zap.String("status", decision.Status),
			zap.Float64("quality_score", score),
			zap.Bool("guardrail_halted", snap.Halted),
			zap.String("trace_id", traceID),
		)
	}
	if e.Broadcast != nil {
		e.Broadcast.BroadcastDecision(decision)
	}
	return &decision, nil
}
