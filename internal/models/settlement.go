package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SettlementOutcomeWin  = "win"
	SettlementOutcomeLoss = "loss"
)

// Settlement is one win/loss outcome fed back into the guardrail. It is the
// rolling-window source for daily loss and drawdown recomputation. Replay
// deduplication is the producer's responsibility.
type Settlement struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Outcome    string          `gorm:"type:varchar(10);not null;index" json:"outcome"`
	Amount     decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"amount"`
	OccurredAt time.Time       `gorm:"type:timestamptz;not null;index" json:"occurred_at"`
	CreatedAt  time.Time       `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Settlement) TableName() string {
	return "settlements"
}
