package scheduler

import (
	"context"
	"time"

	"loadline_backend/internal/reconcile"
	"loadline_backend/platform/logger"
)

const (
	defaultSweepInterval  = 24 * time.Hour
	defaultSweepLookbackH = 24
)

// ReconcileSweep periodically runs the reconciliation sweeper.
type ReconcileSweep struct {
	service   *reconcile.Service
	log       *logger.Logger
	interval  time.Duration
	hoursBack int
}

func NewReconcileSweep(service *reconcile.Service, log *logger.Logger, interval time.Duration, hoursBack int) *ReconcileSweep {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if hoursBack <= 0 {
		hoursBack = defaultSweepLookbackH
	}

	return &ReconcileSweep{
		service:   service,
		log:       log,
		interval:  interval,
		hoursBack: hoursBack,
	}
}

func (s *ReconcileSweep) Run(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReconcileSweep) sweep(ctx context.Context) {
	report, err := s.service.Run(ctx, s.hoursBack)
	if err != nil {
		s.log.Warn("scheduled reconciliation sweep failed", "error", err)
		return
	}
	s.log.Info("scheduled reconciliation sweep finished",
		"checked", report.Checked,
		"reconciled", report.Reconciled,
		"skipped", report.Skipped)
}
