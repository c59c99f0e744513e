package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pickdesk/internal/guardrail"
	"pickdesk/internal/models"
	"pickdesk/internal/repository"
)

// SettlementService persists win/loss outcomes and feeds them to the
// guardrail. Events are applied in arrival order under the machine's own
// serialization; replay deduplication stays with the producer.
type SettlementService struct {
	Repo      repository.Repository
	Guardrail *guardrail.Machine
	Logger    *zap.Logger
}

func (s *SettlementService) Record(ctx context.Context, outcome string, amount decimal.Decimal, at time.Time) (guardrail.Snapshot, error) {
	if outcome != models.SettlementOutcomeWin && outcome != models.SettlementOutcomeLoss {
		return guardrail.Snapshot{}, fmt.Errorf("unknown settlement outcome %q", outcome)
	}
	if amount.IsNegative() {
		return guardrail.Snapshot{}, fmt.Errorf("settlement amount must be non-negative, got %s", amount.String())
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// Persist before applying so window recomputation sees the event.
	if s.Repo != nil {
		item := models.Settlement{Outcome: outcome, Amount: amount, OccurredAt: at}
		if err := s.Repo.InsertSettlement(ctx, &item); err != nil {
			return guardrail.Snapshot{}, err
		}
	}

	snap, err := s.Guardrail.ApplySettlement(ctx, outcome, amount, at)
	if err != nil {
		return snap, err
	}

	// Checkpoint best-effort; a failed save is logged, the applied state
	// remains authoritative in memory.
	if err := s.Guardrail.Checkpoint(ctx); err != nil && s.Logger != nil {
		s.Logger.Warn("guardrail checkpoint failed", zap.Error(err))
	}

	if s.Logger != nil {
		s.Logger.Info("settlement recorded",
			zap.String("outcome", outcome),
			zap.String("amount", amount.StringFixed(2)),
			zap.Bool("halted", snap.Halted),
			zap.Strings("reasons", snap.Reasons),
		)
	}
	return snap, nil
}
