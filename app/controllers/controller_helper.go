package controllers

import (
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/ledger"
	"github.com/launchpadhq/enrollhub/internal/pkg/mail"
	"github.com/launchpadhq/enrollhub/internal/pkg/payments"
)

// newWebhookDispatcher wires the full webhook pipeline over one DB handle.
func newWebhookDispatcher(db *gorm.DB) *payments.Dispatcher {
	recorder := audit.NewRecorder(db)
	svc := payments.NewServiceFromDB(db)
	sm := enrollment.NewStateMachine(db, recorder)
	lg := ledger.New(db, recorder)
	handlers := payments.NewHandlers(svc, sm, lg, mail.ActivationNotifier{})
	return payments.NewDispatcherWithHandlers(handlers)
}

func newStateMachine(db *gorm.DB) *enrollment.StateMachine {
	return enrollment.NewStateMachine(db, audit.NewRecorder(db))
}

func newLedger(db *gorm.DB) *ledger.Ledger {
	return ledger.New(db, audit.NewRecorder(db))
}

func newAuditRecorder(db *gorm.DB) *audit.Recorder {
	return audit.NewRecorder(db)
}
