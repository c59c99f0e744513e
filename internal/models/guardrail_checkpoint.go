package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuardrailCheckpoint persists the single authoritative guardrail state so a
// restart resumes with the counters it halted (or didn't) on. One row, id=1.
type GuardrailCheckpoint struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	DailyLoss         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"daily_loss"`
	ConsecutiveLosses int             `gorm:"not null" json:"consecutive_losses"`
	DrawdownPct       float64         `gorm:"not null" json:"drawdown_pct"`
	WindowStart       time.Time       `gorm:"type:timestamptz;not null" json:"window_start"`

	ManualHalt  bool       `gorm:"not null" json:"manual_halt"`
	HaltedSince *time.Time `gorm:"type:timestamptz" json:"halted_since,omitempty"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (GuardrailCheckpoint) TableName() string {
	return "guardrail_checkpoint"
}
