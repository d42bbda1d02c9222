package repository

import (
	"github.com/launchpadhq/enrollhub/app/models"
)

// EnrollmentRepository defines the interface for enrollment-related database operations
type EnrollmentRepository interface {
	Create(e *models.Enrollment) error
	GetByID(id uint) (*models.Enrollment, error)
	GetByCheckoutSessionID(sessionID string) (*models.Enrollment, error)
	FindLive(guardianEmail, childName string, locationID uint) (*models.Enrollment, error)
	Update(e *models.Enrollment) error
	ListByStatus(statuses []string, offset, limit int) ([]models.Enrollment, error)
	Count() (int64, error)
}

// PayerRepository defines the interface for payer-related database operations
type PayerRepository interface {
	Create(p *models.Payer) error
	GetByID(id uint) (*models.Payer, error)
	GetByEmail(email string) (*models.Payer, error)
	GetOrCreateByEmail(email, name string) (*models.Payer, error)
}

// WaiverRepository defines the interface for waiver-related database operations
type WaiverRepository interface {
	Create(w *models.Waiver) error
	GetByID(id uint) (*models.Waiver, error)
	FindByGuardianAndChild(guardianEmail, childName string) (*models.Waiver, error)
	Update(w *models.Waiver) error
}

// AuditLogRepository defines read access to the audit trail
type AuditLogRepository interface {
	ListByEntity(entityType string, entityID uint, limit int) ([]models.AuditLog, error)
	ListByActor(actor string, limit int) ([]models.AuditLog, error)
}

// Repositories bundles all repository implementations
type Repositories struct {
	Enrollment EnrollmentRepository
	Payer      PayerRepository
	Waiver     WaiverRepository
	AuditLog   AuditLogRepository
}
