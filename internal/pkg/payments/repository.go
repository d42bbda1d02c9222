package payments

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/launchpadhq/enrollhub/app/models"
)

// Repository provides the DB operations used by the payments service and the
// webhook handlers.
type Repository interface {
	UpsertSubscription(sub *models.PaymentSubscription) error
	GetSubscriptionByExternalID(externalID string) (*models.PaymentSubscription, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, status, processingError string) error
	ListFailedEvents(eventType string, olderThan time.Time, limit int) ([]models.WebhookEvent, error)
	GetPaymentByID(id uint) (*models.Payment, error)
	GetPaymentByIntentID(intentID string) (*models.Payment, error)
	SavePayment(p *models.Payment) error
	GetPayer(id uint) (*models.Payer, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) UpsertSubscription(sub *models.PaymentSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"payer_id",
			"enrollment_id",
			"location_id",
			"plan_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("external_id = ?", sub.ExternalID).First(sub).Error
}

func (r *gormRepository) GetSubscriptionByExternalID(externalID string) (*models.PaymentSubscription, error) {
	var sub models.PaymentSubscription
	if err := r.db.Where("external_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, status, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":           status,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListFailedEvents(eventType string, olderThan time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.
		Where("event_type = ? AND status = ? AND created_at < ?", eventType, models.WebhookStatusFailed, olderThan).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("payment_intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SavePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) GetPayer(id uint) (*models.Payer, error) {
	var payer models.Payer
	if err := r.db.First(&payer, id).Error; err != nil {
		return nil, err
	}
	return &payer, nil
}
