package payment

import (
	"context"
	"time"

	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// Reconciler periodically settles gateway payments whose result never
// arrived through verification or a webhook.
type Reconciler struct {
	svc Service
	cfg ReconcilerConfig
}

func NewReconciler(svc Service, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{svc: svc, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "worker"), zap.String("worker", "reconciler"))
	log.Info("payment reconciler started", zap.Duration("interval", r.cfg.Interval))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("payment reconciler stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx, log)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, log *zap.Logger) {
	n, err := r.svc.ReconcileStale(ctx, r.cfg.StaleAfter, r.cfg.BatchSize)
	if err != nil {
		log.Error("reconcile run failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("reconciled stale payments", zap.Int("count", n))
	}
}
