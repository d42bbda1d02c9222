package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
	"github.com/launchpadhq/enrollhub/internal/pkg/cache"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/payments"
)

const (
	// DefaultBatchSize bounds how many candidate rows one sweep run
	// touches so a large backlog cannot starve the next scheduled run.
	DefaultBatchSize = 100

	// DefaultGraceWindow keeps the replay sweep from racing a handler
	// that is still being retried by the processor.
	DefaultGraceWindow = 10 * time.Minute

	lockTTL = 5 * time.Minute
)

// Finding describes one detected mismatch and the correction applied.
type Finding struct {
	Sweep      string `json:"sweep"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	Repair     string `json:"repair"`
	Err        string `json:"error,omitempty"`
}

// Result summarizes one monitor run.
type Result struct {
	StuckRepaired  int       `json:"stuck_repaired"`
	EventsReplayed int       `json:"events_replayed"`
	Findings       []Finding `json:"findings"`
}

// Monitor periodically detects and repairs drift between the payment
// processor's view and local state. Both sweeps are idempotent: running the
// monitor twice against an already-consistent store produces zero findings
// and no writes.
type Monitor struct {
	db          *gorm.DB
	svc         *payments.Service
	enrollments *enrollment.StateMachine
	handlers    *payments.Handlers
	audit       *audit.Recorder

	BatchSize   int
	GraceWindow time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	sweepMu sync.Mutex // single-flight guard: one sweep per process at a time
}

// NewMonitor builds a monitor over the given collaborators.
func NewMonitor(db *gorm.DB, svc *payments.Service, sm *enrollment.StateMachine, h *payments.Handlers, recorder *audit.Recorder) *Monitor {
	return &Monitor{
		db:          db,
		svc:         svc,
		enrollments: sm,
		handlers:    h,
		audit:       recorder,
		BatchSize:   DefaultBatchSize,
		GraceWindow: DefaultGraceWindow,
	}
}

// Start launches the periodic sweep. Safe to call once per process.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.ticker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.worker()
	log.Infof("[Reconcile] monitor started with interval %v", interval)
}

// Stop halts the periodic sweep and waits for an in-flight run to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.ticker.Stop()
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	log.Info("[Reconcile] monitor stopped")
}

func (m *Monitor) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			if _, err := m.RunOnce(context.Background()); err != nil {
				log.Errorf("[Reconcile] sweep failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

// RunOnce executes both sweeps a single time. Also the entry point for the
// HTTP cron trigger.
func (m *Monitor) RunOnce(ctx context.Context) (*Result, error) {
	// In-process single flight; overlapping timer ticks and cron triggers
	// collapse to sequential runs.
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if !m.enabled() {
		log.Info("[Reconcile] disabled by setting, skipping run")
		return &Result{}, nil
	}

	res := &Result{}
	if err := m.repairStuckEnrollments(ctx, res); err != nil {
		return res, err
	}
	if err := m.replayFailedWebhooks(ctx, res); err != nil {
		return res, err
	}
	if res.StuckRepaired > 0 || res.EventsReplayed > 0 {
		log.Infof("[Reconcile] run complete: %d stuck repaired, %d events replayed",
			res.StuckRepaired, res.EventsReplayed)
	}
	return res, nil
}

// enabled consults the reconcile_enabled setting through a short-lived redis
// cache. Stale reads are acceptable for the cache TTL.
func (m *Monitor) enabled() bool {
	const cacheKey = "settings:reconcile_enabled"
	if v, err := cache.Get(cacheKey); err == nil {
		return v == "true"
	}
	enabled := models.GetSettingBool(m.db, models.SettingReconcileEnabled, true)
	val := "false"
	if enabled {
		val = "true"
	}
	if err := cache.Set(cacheKey, val, time.Minute); err != nil {
		log.Debugf("[Reconcile] settings cache write failed: %v", err)
	}
	return enabled
}

// acquireSweepLock takes the cross-process advisory lock for a sweep. Redis
// being unreachable degrades to the in-process guard only.
func (m *Monitor) acquireSweepLock(name string) (func(), bool) {
	key := "reconcile:lock:" + name
	ok, err := cache.AcquireLock(key, lockTTL)
	if err != nil {
		log.Warnf("[Reconcile] advisory lock for %s unavailable: %v", name, err)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := cache.ReleaseLock(key); err != nil {
			log.Warnf("[Reconcile] releasing lock %s failed: %v", key, err)
		}
	}, true
}

func (m *Monitor) batchSize() int {
	n := models.GetSettingInt(m.db, models.SettingReconcileBatchSize, m.BatchSize)
	if n <= 0 {
		n = DefaultBatchSize
	}
	return n
}

// repairStuckEnrollments finds enrollments still in a live-but-unpaid status
// that carry a checkout-session reference. That combination means a checkout
// webhook was missed or arrived before the row existed; the record is forced
// to active.
func (m *Monitor) repairStuckEnrollments(ctx context.Context, res *Result) error {
	release, ok := m.acquireSweepLock("stuck_enrollments")
	if !ok {
		log.Info("[Reconcile] stuck-enrollment sweep already running elsewhere, skipping")
		return nil
	}
	defer release()

	var stuck []models.Enrollment
	err := m.db.WithContext(ctx).
		Where("status IN ? AND checkout_session_id IS NOT NULL AND checkout_session_id <> ''",
			[]string{
				models.EnrollmentStatusPending,
				models.EnrollmentStatusPendingPayment,
				models.EnrollmentStatusApproved,
			}).
		Order("id ASC").
		Limit(m.batchSize()).
		Find(&stuck).Error
	if err != nil {
		return err
	}

	for i := range stuck {
		e := &stuck[i]
		if _, err := m.enrollments.Activate(ctx, models.ActorSystem, e.ID, e.SubscriptionID); err != nil {
			log.Errorf("[Reconcile] failed to repair enrollment %d: %v", e.ID, err)
			res.Findings = append(res.Findings, Finding{
				Sweep:      "stuck_enrollments",
				EntityType: "enrollment",
				EntityID:   e.ID,
				Repair:     "activate",
				Err:        err.Error(),
			})
			continue
		}
		log.Infof("[Reconcile] repaired stuck enrollment %d (was %s)", e.ID, e.Status)
		res.StuckRepaired++
		res.Findings = append(res.Findings, Finding{
			Sweep:      "stuck_enrollments",
			EntityType: "enrollment",
			EntityID:   e.ID,
			Repair:     "activate",
		})
		m.audit.MustRecord(models.ActorSystem, "reconcile.stuck_enrollment_repaired", "enrollment", e.ID, map[string]interface{}{
			"previous_status":     e.Status,
			"checkout_session_id": e.CheckoutSessionID,
		})
	}
	return nil
}

// replayFailedWebhooks re-drives previously-failed checkout.session.completed
// events from their stored payloads. Only events older than the grace window
// are considered, to avoid racing processor-side retries still in flight.
func (m *Monitor) replayFailedWebhooks(ctx context.Context, res *Result) error {
	release, ok := m.acquireSweepLock("failed_webhooks")
	if !ok {
		log.Info("[Reconcile] webhook replay sweep already running elsewhere, skipping")
		return nil
	}
	defer release()

	cutoff := time.Now().Add(-m.GraceWindow)
	events, err := m.svc.Repo().ListFailedEvents(payments.EventCheckoutSessionCompleted, cutoff, m.batchSize())
	if err != nil {
		return err
	}

	for i := range events {
		rec := &events[i]
		ev, parseErr := payments.ParseEvent([]byte(rec.PayloadJSON))
		if parseErr != nil {
			// Unparseable payload will never replay successfully.
			_ = m.svc.MarkWebhookProcessed(ctx, rec.ID, payments.ErrUnknownReference)
			res.Findings = append(res.Findings, Finding{
				Sweep:      "failed_webhooks",
				EntityType: "webhook_event",
				EntityID:   rec.ID,
				Repair:     "replay",
				Err:        parseErr.Error(),
			})
			continue
		}

		replayErr := m.handlers.HandleCheckoutCompleted(ctx, ev)
		if markErr := m.svc.MarkWebhookProcessed(ctx, rec.ID, replayErr); markErr != nil {
			log.Errorf("[Reconcile] marking webhook %d failed: %v", rec.ID, markErr)
		}
		finding := Finding{
			Sweep:      "failed_webhooks",
			EntityType: "webhook_event",
			EntityID:   rec.ID,
			Repair:     "replay",
		}
		if replayErr != nil && !payments.IsBusinessRejection(replayErr) {
			log.Errorf("[Reconcile] replay of webhook %d failed: %v", rec.ID, replayErr)
			finding.Err = replayErr.Error()
		} else {
			res.EventsReplayed++
			m.audit.MustRecord(models.ActorSystem, "reconcile.webhook_replayed", "webhook_event", rec.ID, map[string]interface{}{
				"event_type":        rec.EventType,
				"provider_event_id": rec.ProviderEventID,
			})
		}
		res.Findings = append(res.Findings, finding)
	}
	return nil
}
