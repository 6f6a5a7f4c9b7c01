package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup removes processed idempotency keys past retention.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskAuditPrune removes audit log entries past retention.
	TaskAuditPrune = "maintenance:audit_prune"
)

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewAuditPruneTask constructs the audit retention task.
func NewAuditPruneTask() *asynq.Task {
	return asynq.NewTask(TaskAuditPrune, nil)
}

// Maintenance bundles the periodic housekeeping handlers.
type Maintenance struct {
	logger         *slog.Logger
	idem           *shared.IdempotencyStore
	audit          *shared.AuditLogger
	metrics        *Metrics
	idemRetention  time.Duration
	auditRetention time.Duration
}

// NewMaintenance constructs the maintenance handlers.
func NewMaintenance(logger *slog.Logger, idem *shared.IdempotencyStore, audit *shared.AuditLogger, metrics *Metrics, idemRetention, auditRetention time.Duration) *Maintenance {
	if idemRetention <= 0 {
		idemRetention = 7 * 24 * time.Hour
	}
	if auditRetention <= 0 {
		auditRetention = 90 * 24 * time.Hour
	}
	return &Maintenance{
		logger:         logger,
		idem:           idem,
		audit:          audit,
		metrics:        metrics,
		idemRetention:  idemRetention,
		auditRetention: auditRetention,
	}
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (m *Maintenance) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := m.metrics.Track(TaskIdempotencyCleanup)
	if err := m.idem.Cleanup(ctx, m.idemRetention); err != nil {
		m.logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	m.logger.Info("idempotency cleanup complete", slog.Duration("retention", m.idemRetention))
	return nil
}

// HandleAuditPrune processes TaskAuditPrune tasks.
func (m *Maintenance) HandleAuditPrune(ctx context.Context, t *asynq.Task) error {
	tracker := m.metrics.Track(TaskAuditPrune)
	if err := m.audit.Prune(ctx, m.auditRetention); err != nil {
		m.logger.Error("audit prune", slog.Any("error", err))
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	m.logger.Info("audit prune complete", slog.Duration("retention", m.auditRetention))
	return nil
}
