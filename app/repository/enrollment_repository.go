package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository creates a GORM-backed enrollment repository
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Create(e *models.Enrollment) error {
	return r.db.Create(e).Error
}

func (r *enrollmentRepository) GetByID(id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepository) GetByCheckoutSessionID(sessionID string) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.Where("checkout_session_id = ?", sessionID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepository) FindLive(guardianEmail, childName string, locationID uint) (*models.Enrollment, error) {
	return models.FindLiveEnrollment(r.db, strings.ToLower(strings.TrimSpace(guardianEmail)), childName, locationID)
}

func (r *enrollmentRepository) Update(e *models.Enrollment) error {
	return r.db.Save(e).Error
}

func (r *enrollmentRepository) ListByStatus(statuses []string, offset, limit int) ([]models.Enrollment, error) {
	var list []models.Enrollment
	err := r.db.Where("status IN ?", statuses).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *enrollmentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Enrollment{}).Count(&count).Error
	return count, err
}
