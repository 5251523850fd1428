package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/service"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// EscalationSweeper is the part of the escalation service the worker drives.
type EscalationSweeper interface {
	AutoEscalate(ctx context.Context, actor domain.Actor) (*service.AutoEscalateResult, error)
}

// OverdueLister lists the currently overdue issues.
type OverdueLister interface {
	Overdue(ctx context.Context, q service.OverdueQuery) ([]sla.OverdueRecord, error)
}

// OverdueNotifier fans overdue issues out to staff and departments.
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, records []sla.OverdueRecord) service.OverdueDigest
}

// EscalationWorker periodically auto-escalates critical issues and sends
// the overdue digest.
type EscalationWorker struct {
	sweeper  EscalationSweeper
	overdue  OverdueLister
	notifier OverdueNotifier
	interval time.Duration
	logger   *zap.Logger
}

// NewEscalationWorker builds the worker. notifier may be nil.
func NewEscalationWorker(sweeper EscalationSweeper, overdue OverdueLister, notifier OverdueNotifier, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationWorker{
		sweeper:  sweeper,
		overdue:  overdue,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the worker and Run returns immediately.
func (w *EscalationWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("escalation sweep disabled")
		return
	}
	w.logger.Info("escalation sweep started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escalation sweep stopped")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("escalation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep. A sweep already running elsewhere is not an error.
func (w *EscalationWorker) RunOnce(ctx context.Context) error {
	result, err := w.sweeper.AutoEscalate(ctx, domain.SystemActor)
	switch {
	case apperrors.HasCode(err, apperrors.CodePolicy):
		w.logger.Debug("escalation sweep skipped", zap.Error(err))
		return nil
	case err != nil:
		return err
	}
	w.logger.Info("escalation sweep",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed))

	if w.overdue == nil || w.notifier == nil {
		return nil
	}
	records, err := w.overdue.Overdue(ctx, service.OverdueQuery{})
	if err != nil {
		return err
	}
	w.notifier.NotifyOverdue(ctx, records)
	return nil
}
