package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/learnerfast/learnerfast/internal/pkg/logger"
	"github.com/learnerfast/learnerfast/internal/pkg/payments"
)

const (
	ReconcileSchedule     = "0 */5 * * * *"
	DomainRecheckSchedule = "0 */30 * * * *"
	defaultReconcileAfter = 15 * time.Minute
	reconcileBatch        = 50
	jobTimeout            = 4 * time.Minute
)

// PaymentReconciler re-checks stale PENDING payments.
type PaymentReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (payments.ReconcileReport, error)
}

// DomainRechecker re-verifies pending custom domains.
type DomainRechecker interface {
	RecheckPending(ctx context.Context) (checked, verified int, err error)
}

type Config struct {
	ReconcileAfter time.Duration
}

// Manager owns the scheduled background jobs.
type Manager struct {
	cron     *cron.Cron
	log      *logger.Logger
	payments PaymentReconciler
	domains  DomainRechecker
	cfg      Config
}

func NewManager(p PaymentReconciler, d DomainRechecker, cfg Config, log *logger.Logger) *Manager {
	if cfg.ReconcileAfter <= 0 {
		cfg.ReconcileAfter = defaultReconcileAfter
	}
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Manager{cron: c, log: log, payments: p, domains: d, cfg: cfg}
}

// Start registers all jobs and starts the scheduler.
func (m *Manager) Start() error {
	if err := m.registerJobs(); err != nil {
		return err
	}
	m.cron.Start()
	m.log.Info("cron jobs started", "jobs", len(m.cron.Entries()))
	return nil
}

// Stop waits for running jobs to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron jobs stopped")
}

func (m *Manager) registerJobs() error {
	if m.payments != nil {
		if _, err := m.cron.AddFunc(ReconcileSchedule, m.ReconcilePayments); err != nil {
			return err
		}
	}
	if m.domains != nil {
		if _, err := m.cron.AddFunc(DomainRecheckSchedule, m.RecheckDomains); err != nil {
			return err
		}
	}
	return nil
}

// ReconcilePayments runs one reconciliation sweep.
func (m *Manager) ReconcilePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	report, err := m.payments.ReconcilePending(ctx, m.cfg.ReconcileAfter, reconcileBatch)
	if err != nil {
		m.log.Error("job failed", "job", "reconcile_payments", "error", err)
		return
	}
	m.log.Debug("job completed", "job", "reconcile_payments", "checked", report.Checked, "duration", time.Since(start))
}

// RecheckDomains runs one domain verification sweep.
func (m *Manager) RecheckDomains() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	checked, verified, err := m.domains.RecheckPending(ctx)
	if err != nil {
		m.log.Error("job failed", "job", "recheck_domains", "error", err)
		return
	}
	m.log.Debug("job completed", "job", "recheck_domains", "checked", checked, "verified", verified, "duration", time.Since(start))
}

// cronLogger adapts the zap wrapper to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
