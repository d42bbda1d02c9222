package audit

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

// Recorder appends audit records. It is the system's primary observability
// surface: every state transition, ledger append and reconciliation repair
// goes through it.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a recorder writing to the given database.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one audit row. The detail map is serialized to JSON; a nil
// map produces an empty detail payload.
func (r *Recorder) Record(actor, action, entityType string, entityID uint, detail map[string]interface{}) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return errors.New("audit: actor is required")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("audit: action is required")
	}

	detailJSON := ""
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		detailJSON = string(raw)
	}

	entry := &models.AuditLog{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		DetailJSON: detailJSON,
	}
	return r.db.Create(entry).Error
}

// MustRecord records and only logs on failure. Audit writes must never fail
// the surrounding business operation once that operation has committed.
func (r *Recorder) MustRecord(actor, action, entityType string, entityID uint, detail map[string]interface{}) {
	if err := r.Record(actor, action, entityType, entityID, detail); err != nil {
		log.Errorf("[Audit] failed to record %s %s/%d: %v", action, entityType, entityID, err)
	}
}
