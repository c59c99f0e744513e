package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is one append-only compliance record. The core never updates or
// deletes rows; retention cleanup is a scheduled job outside the write path.
type AuditEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Action        string `gorm:"type:varchar(50);not null;index" json:"action"`
	RequesterID   string `gorm:"type:varchar(100);index" json:"requester_id"`
	RequesterRole string `gorm:"type:varchar(20)" json:"requester_role"`
	Resource      string `gorm:"type:varchar(200)" json:"resource"`

	RequiredRoles datatypes.JSON `gorm:"type:jsonb" json:"required_roles,omitempty"`

	TraceID   string    `gorm:"type:varchar(36);index" json:"trace_id"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
