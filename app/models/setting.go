package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Setting keys used by the core engine.
const (
	SettingReconcileEnabled   = "reconcile_enabled"
	SettingReconcileBatchSize = "reconcile_batch_size"
)

// Setting represents a system setting stored as a typed string value.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSettingBool reads a boolean setting, returning def when the row is
// missing or unparseable.
func GetSettingBool(db *gorm.DB, key string, def bool) bool {
	var s Setting
	if err := db.Where("setting_key = ?", key).First(&s).Error; err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(s.Value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// GetSettingInt reads an integer setting, returning def when the row is
// missing or unparseable.
func GetSettingInt(db *gorm.DB, key string, def int) int {
	var s Setting
	if err := db.Where("setting_key = ?", key).First(&s).Error; err != nil {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s.Value))
	if err != nil {
		return def
	}
	return v
}
