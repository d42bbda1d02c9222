package models

import "time"

// Waiver is the liability-waiver record kept loosely coupled to an
// enrollment. There is no foreign key between the two; pairing is best-effort
// by guardian email + child name (see the waiversync package).
type Waiver struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	GuardianEmail    string     `gorm:"type:varchar(200);not null;index" json:"guardian_email"`
	ChildName        string     `gorm:"type:varchar(150);not null;index" json:"child_name"`
	ChildBirthDate   *time.Time `gorm:"type:date;default:null" json:"child_birth_date,omitempty"`
	EmergencyContact string     `gorm:"type:varchar(200)" json:"emergency_contact"`
	SignatureRef     string     `gorm:"type:varchar(191)" json:"signature_ref,omitempty"`
	SignedAt         *time.Time `gorm:"type:timestamp;default:null" json:"signed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
