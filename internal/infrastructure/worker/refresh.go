package worker

import (
	"context"
	"fmt"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"

	"go.uber.org/zap"
)

// Refresher is the part of application.Coordinator the worker drives.
type Refresher interface {
	Refresh(ctx context.Context) (domain.RefreshReport, error)
}

var _ application.Worker = (*RefreshWorker)(nil)

// RefreshWorker runs one refresh at start, then one per tick and one per
// value received on Trigger, until ctx is canceled. Failures are logged and
// never stop the loop.
type RefreshWorker struct {
	Refresher Refresher
	Every     time.Duration
	Trigger   <-chan struct{}
	Log       *zap.Logger
}

const DefaultRefreshEvery = 5 * time.Minute

func (w *RefreshWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.Every <= 0 {
		w.Every = DefaultRefreshEvery
	}

	t := time.NewTicker(w.Every)
	defer t.Stop()

	log.Info("refresh_worker.started", zap.Duration("every", w.Every))
	w.RunOnce(ctx, log, "startup")
	for {
		select {
		case <-ctx.Done():
			log.Info("refresh_worker.stopped")
			return
		case <-t.C:
			w.RunOnce(ctx, log, "tick")
		case _, ok := <-w.Trigger:
			if !ok {
				w.Trigger = nil
				continue
			}
			w.RunOnce(ctx, log, "trigger")
		}
	}
}

// RunOnce performs a single refresh. A panic inside the refresher is
// recovered and logged.
func (w *RefreshWorker) RunOnce(ctx context.Context, log *zap.Logger, reason string) (rep domain.RefreshReport, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("reason", reason))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panic: %v", r)
			log.Error("refresh_worker.panic", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	rep, err = w.Refresher.Refresh(ctx)
	if err != nil {
		log.Error("refresh_worker.failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return rep, err
	}
	log.Info("refresh_worker.done",
		zap.Int("pairs", rep.PairsUpdated),
		zap.Int("errors", len(rep.Errors)),
		zap.Duration("took", time.Since(start)),
	)
	return rep, nil
}
