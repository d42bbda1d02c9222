package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

type waiverRepository struct {
	db *gorm.DB
}

// NewWaiverRepository creates a GORM-backed waiver repository
func NewWaiverRepository(db *gorm.DB) WaiverRepository {
	return &waiverRepository{db: db}
}

func (r *waiverRepository) Create(w *models.Waiver) error {
	return r.db.Create(w).Error
}

func (r *waiverRepository) GetByID(id uint) (*models.Waiver, error) {
	var w models.Waiver
	if err := r.db.First(&w, id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *waiverRepository) FindByGuardianAndChild(guardianEmail, childName string) (*models.Waiver, error) {
	var w models.Waiver
	err := r.db.
		Where("guardian_email = ? AND child_name = ?",
			strings.ToLower(strings.TrimSpace(guardianEmail)), strings.TrimSpace(childName)).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *waiverRepository) Update(w *models.Waiver) error {
	return r.db.Save(w).Error
}
