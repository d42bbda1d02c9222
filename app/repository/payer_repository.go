package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

type payerRepository struct {
	db *gorm.DB
}

// NewPayerRepository creates a GORM-backed payer repository
func NewPayerRepository(db *gorm.DB) PayerRepository {
	return &payerRepository{db: db}
}

func (r *payerRepository) Create(p *models.Payer) error {
	return r.db.Create(p).Error
}

func (r *payerRepository) GetByID(id uint) (*models.Payer, error) {
	var p models.Payer
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *payerRepository) GetByEmail(email string) (*models.Payer, error) {
	var p models.Payer
	if err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *payerRepository) GetOrCreateByEmail(email, name string) (*models.Payer, error) {
	existing, err := r.GetByEmail(email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p := &models.Payer{
		Name:  strings.TrimSpace(name),
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := r.db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}
