package repository

import (
	"context"
	"time"

	"pickdesk/internal/models"
)

// Repository is the narrow persistence surface of the decision core. The
// core never retries store failures; they propagate to the caller unmodified.
type Repository interface {
	// Decisions are insert-only from the evaluation pipeline.
	InsertDecision(ctx context.Context, item *models.Decision) error
	GetDecisionByID(ctx context.Context, id string) (*models.Decision, error)
	ListDecisions(ctx context.Context, params ListDecisionsParams) ([]models.Decision, error)
	CountDecisions(ctx context.Context, params ListDecisionsParams) (int64, error)

	// Settlements feed the guardrail's rolling window.
	InsertSettlement(ctx context.Context, item *models.Settlement) error
	ListSettlementsSince(ctx context.Context, since time.Time) ([]models.Settlement, error)
	DeleteSettlementsBefore(ctx context.Context, before time.Time) (int64, error)

	// Guardrail checkpoint, single row.
	LoadGuardrailCheckpoint(ctx context.Context) (*models.GuardrailCheckpoint, error)
	SaveGuardrailCheckpoint(ctx context.Context, item *models.GuardrailCheckpoint) error

	// Audit trail, append-only.
	InsertAuditEvent(ctx context.Context, item *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, params ListAuditEventsParams) ([]models.AuditEvent, error)
	CountAuditEvents(ctx context.Context, params ListAuditEventsParams) (int64, error)
	DeleteAuditEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

type ListDecisionsParams struct {
	Limit       int
	Offset      int
	Status      *string
	OwnerUserID *string
	MatchID     *string
	Since       *time.Time
	OrderBy     string
	Asc         *bool
}

type ListAuditEventsParams struct {
	Limit       int
	Offset      int
	Action      *string
	RequesterID *string
	Since       *time.Time
	OrderBy     string
	Asc         *bool
}

// AuditSink adapts the repository to the audit append interface used by the
// authorization layer.
type AuditSink struct {
	Repo Repository
}

func (s AuditSink) Append(ctx context.Context, event models.AuditEvent) error {
	if s.Repo == nil {
		return nil
	}
	return s.Repo.InsertAuditEvent(ctx, &event)
}
