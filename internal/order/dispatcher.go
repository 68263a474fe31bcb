package order

import (
	"context"
	"sync"
	"time"

	"vestra-be/internal/logger"

	"go.uber.org/zap"
)

// Dispatcher periodically sweeps link-gateway orders stuck in PENDING and
// re-queries the provider, so orders whose webhook was lost still settle.
type Dispatcher struct {
	svc      Service
	interval time.Duration
	minAge   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher sweeps every interval, skipping orders younger than minAge
// so the buyer has time to finish paying before the first re-query.
func NewDispatcher(svc Service, interval, minAge time.Duration) *Dispatcher {
	return &Dispatcher{
		svc:      svc,
		interval: interval,
		minAge:   minAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; call Stop to shut
// the loop down and wait for an in-flight sweep to finish.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep(ctx)
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	settled, err := d.svc.ReconcilePending(ctx, d.minAge)
	if err != nil {
		logger.FromCtx(ctx).Error("sweep failed", zap.Error(err))
		return
	}
	if settled > 0 {
		logger.FromCtx(ctx).Info("sweep settled stale orders",
			zap.Int("settled", settled))
	}
}
