package repository

import (
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a GORM-backed audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) ListByEntity(entityType string, entityID uint, limit int) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *auditLogRepository) ListByActor(actor string, limit int) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.Where("actor = ?", actor).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
