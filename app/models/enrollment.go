package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Enrollment statuses. "Live" statuses take part in the duplicate-prevention
// check on submission; cancelled is terminal and never reused.
const (
	EnrollmentStatusPending        = "pending"
	EnrollmentStatusPendingPayment = "pending_payment"
	EnrollmentStatusApproved       = "approved"
	EnrollmentStatusActive         = "active"
	EnrollmentStatusCancelled      = "cancelled"
)

// Plan types supported at checkout.
const (
	PlanTypeMonthly = "recurring_monthly"
	PlanTypePrepaid = "fixed_term_prepaid"
)

// Enrollment represents one child's registration at one location under one plan.
type Enrollment struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	GuardianName       string     `gorm:"type:varchar(150);not null" json:"guardian_name" validate:"required,min=2,max=150"`
	GuardianEmail      string     `gorm:"type:varchar(200);not null;index:idx_enrollments_guardian_email" json:"guardian_email" validate:"required,email,max=200"`
	GuardianPhone      string     `gorm:"type:varchar(30)" json:"guardian_phone" validate:"max=30"`
	ChildName          string     `gorm:"type:varchar(150);not null;index:idx_enrollments_child_name" json:"child_name" validate:"required,min=2,max=150"`
	ChildBirthDate     *time.Time `gorm:"type:date;default:null" json:"child_birth_date,omitempty"`
	EmergencyContact   string     `gorm:"type:varchar(200)" json:"emergency_contact" validate:"max=200"`
	LocationID         uint       `gorm:"not null;index" json:"location_id" validate:"required"`
	PlanType           string     `gorm:"type:varchar(32);not null;default:'recurring_monthly'" json:"plan_type" validate:"oneof=recurring_monthly fixed_term_prepaid"`
	Status             string     `gorm:"type:varchar(32);not null;default:'pending_payment';index" json:"status"`
	CheckoutSessionID  string     `gorm:"type:varchar(191);default:null;index" json:"checkout_session_id,omitempty"`
	SubscriptionID     string     `gorm:"type:varchar(191);default:null;index" json:"subscription_id,omitempty"`
	SignatureRef       string     `gorm:"type:varchar(191)" json:"signature_ref,omitempty"`
	SubmittedAt        time.Time  `gorm:"autoCreateTime" json:"submitted_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Enrollment) Validate() error {
	v := validator.New()

	return v.Struct(e)
}

// IsLive reports whether the enrollment occupies the (guardian, child,
// location) slot for duplicate prevention.
func (e *Enrollment) IsLive() bool {
	return IsLiveEnrollmentStatus(e.Status)
}

func IsLiveEnrollmentStatus(status string) bool {
	switch status {
	case EnrollmentStatusPending, EnrollmentStatusPendingPayment,
		EnrollmentStatusApproved, EnrollmentStatusActive:
		return true
	default:
		return false
	}
}

// LiveEnrollmentStatuses returns the statuses counted as live for queries.
func LiveEnrollmentStatuses() []string {
	return []string{
		EnrollmentStatusPending,
		EnrollmentStatusPendingPayment,
		EnrollmentStatusApproved,
		EnrollmentStatusActive,
	}
}

// FindLiveEnrollment looks up the current live enrollment for a guardian
// email + child name + location triple, if any.
func FindLiveEnrollment(db *gorm.DB, guardianEmail, childName string, locationID uint) (*Enrollment, error) {
	var e Enrollment
	err := db.Where(
		"guardian_email = ? AND child_name = ? AND location_id = ? AND status IN ?",
		guardianEmail, childName, locationID, LiveEnrollmentStatuses(),
	).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}
