package models

import "time"

// ActorSystem tags audit records produced by automated repairs so they are
// distinguishable from user-driven activity in later audits.
const ActorSystem = "system"

// AuditLog is one append-only audit record. Every state transition, ledger
// append and reconciliation repair writes exactly one row.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Actor      string    `gorm:"type:varchar(200);not null;index" json:"actor"`
	Action     string    `gorm:"type:varchar(100);not null;index" json:"action"`
	EntityType string    `gorm:"type:varchar(50);not null;index:idx_audit_logs_entity,priority:1" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_audit_logs_entity,priority:2" json:"entity_id"`
	DetailJSON string    `gorm:"type:longtext" json:"detail_json"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
