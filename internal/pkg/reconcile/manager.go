package reconcile

import (
	"sync"

	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/ledger"
	"github.com/launchpadhq/enrollhub/internal/pkg/mail"
	"github.com/launchpadhq/enrollhub/internal/pkg/payments"
)

var (
	globalMonitor *Monitor
	monitorOnce   sync.Once
)

// GetMonitor returns the global reconciliation monitor (singleton), built
// over the global database handle on first use.
func GetMonitor() *Monitor {
	monitorOnce.Do(func() {
		db := database.GetDB()
		recorder := audit.NewRecorder(db)
		svc := payments.NewServiceFromDB(db)
		sm := enrollment.NewStateMachine(db, recorder)
		lg := ledger.New(db, recorder)
		handlers := payments.NewHandlers(svc, sm, lg, mail.ActivationNotifier{})
		globalMonitor = NewMonitor(db, svc, sm, handlers, recorder)
	})
	return globalMonitor
}
