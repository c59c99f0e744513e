package db

import (
	"pickdesk/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Decision{},
		&models.Settlement{},
		&models.GuardrailCheckpoint{},
		&models.AuditEvent{},
	)
}
