package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pickdesk/internal/models"
	"pickdesk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- decisions ---------------------------------------------------------------

func (s *Store) InsertDecision(ctx context.Context, item *models.Decision) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetDecisionByID(ctx context.Context, id string) (*models.Decision, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Decision
	err := s.db.WithContext(ctx).
		Model(&models.Decision{}).
		Where("id = ?", strings.TrimSpace(id)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.Decision, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.Decision{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Decision
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountDecisions(ctx context.Context, params repository.ListDecisionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	query := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.Decision{}), params)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyDecisionFilters(query *gorm.DB, params repository.ListDecisionsParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.OwnerUserID != nil && strings.TrimSpace(*params.OwnerUserID) != "" {
		query = query.Where("owner_user_id = ?", strings.TrimSpace(*params.OwnerUserID))
	}
	if params.MatchID != nil && strings.TrimSpace(*params.MatchID) != "" {
		query = query.Where("match_id = ?", strings.TrimSpace(*params.MatchID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// --- settlements -------------------------------------------------------------

func (s *Store) InsertSettlement(ctx context.Context, item *models.Settlement) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListSettlementsSince(ctx context.Context, since time.Time) ([]models.Settlement, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Settlement
	err := s.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("occurred_at >= ?", since).
		Order("occurred_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteSettlementsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("occurred_at < ?", before).
		Delete(&models.Settlement{})
	return res.RowsAffected, res.Error
}

// --- guardrail checkpoint ----------------------------------------------------

func (s *Store) LoadGuardrailCheckpoint(ctx context.Context) (*models.GuardrailCheckpoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.GuardrailCheckpoint
	err := s.db.WithContext(ctx).
		Model(&models.GuardrailCheckpoint{}).
		Where("id = ?", 1).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveGuardrailCheckpoint(ctx context.Context, item *models.GuardrailCheckpoint) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ID = 1
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(item).Error
}

// --- audit trail -------------------------------------------------------------

func (s *Store) InsertAuditEvent(ctx context.Context, item *models.AuditEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListAuditEvents(ctx context.Context, params repository.ListAuditEventsParams) ([]models.AuditEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditEvent{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.AuditEvent
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAuditEvents(ctx context.Context, params repository.ListAuditEventsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditEvent{}), params)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DeleteAuditEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.AuditEvent{})
	return res.RowsAffected, res.Error
}

func applyAuditFilters(query *gorm.DB, params repository.ListAuditEventsParams) *gorm.DB {
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.RequesterID != nil && strings.TrimSpace(*params.RequesterID) != "" {
		query = query.Where("requester_id = ?", strings.TrimSpace(*params.RequesterID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
