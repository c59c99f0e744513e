package models

import (
	"time"

	"gorm.io/datatypes"
)

// Decision status values. A decision never changes status after creation;
// settlement outcome is recorded by the settlement pipeline, not here.
const (
	DecisionStatusPick    = "pick"
	DecisionStatusNoBet   = "no_bet"
	DecisionStatusBlocked = "blocked"
	DecisionStatusPending = "pending"
)

// Market types select which edge gate applies.
const (
	MarketTypeWinner    = "winner"
	MarketTypeOverUnder = "over_under"
)

// GateResult is one threshold comparison inside a decision. Stored as part of
// the decision's gate_results JSON payload, unique by Name.
type GateResult struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Status    string  `json:"status"` // pass|warn|fail
}

// Decision is the gated recommendation produced for one evaluated match
// signal. Rows are insert-only from the evaluation pipeline.
type Decision struct {
	ID      string `gorm:"type:varchar(36);primaryKey" json:"id"`
	MatchID string `gorm:"type:varchar(100);not null;index" json:"match_id"`

	// OwnerUserID is cleared before returning rows to the observer role.
	OwnerUserID string `gorm:"type:varchar(100);not null;index" json:"owner_user_id,omitempty"`

	Status     string `gorm:"type:varchar(20);not null;index" json:"status"`
	MarketType string `gorm:"type:varchar(20);not null" json:"market_type"`

	QualityScore float64 `gorm:"not null" json:"quality_score"`
	Edge         float64 `gorm:"not null" json:"edge"`
	Confidence   float64 `gorm:"not null" json:"confidence"`
	Drift        float64 `gorm:"not null" json:"drift"`

	GateResults datatypes.JSON `gorm:"type:jsonb" json:"gate_results"`

	TraceID   string    `gorm:"type:varchar(36)" json:"trace_id"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (Decision) TableName() string {
	return "decisions"
}
