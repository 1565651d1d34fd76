// Package reconciler periodically settles MOMO payments that never received a
// callback.
package reconciler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

type Reconciler interface {
	Reconcile(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

type Service struct {
	payments   Reconciler
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	timeout    time.Duration
	stop       chan struct{}
	done       chan struct{}
}

func New(p Reconciler, cfg config.ReconcilerConfig) *Service {
	return &Service{
		payments:   p,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		batch:      cfg.BatchSize,
		timeout:    cfg.Interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// RunOnce reconciles a single batch and returns how many transactions reached
// a final state.
func (s *Service) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.payments.Reconcile(ctx, s.staleAfter, s.batch)
	m.ObserveDuration("worker", "RECONCILE", time.Since(start).Seconds())
	if err != nil {
		m.IncRequest("worker", "FAILED", "RECONCILE")
		log.WithError(err).Error("[RECONCILER] Batch failed")
		return n
	}
	m.IncRequest("worker", "SUCCESS", "RECONCILE")
	if n > 0 {
		log.WithField("settled", n).Info("[RECONCILER] Settled stale transactions")
	}
	return n
}

func (s *Service) Start() {
	log.WithFields(log.Fields{"interval": s.interval, "stale_after": s.staleAfter}).Debug("[RECONCILER] Starting")
	go func() {
		defer close(s.done)
		for {
			s.RunOnce(context.Background())

			select {
			case <-s.stop:
				log.Debug("[RECONCILER] Stopped")
				return
			case <-time.After(s.interval):
			}
		}
	}()
}

// Stop waits for the batch in flight to finish.
func (s *Service) Stop() {
	log.Debug("[RECONCILER] Stopping")
	close(s.stop)
	<-s.done
}
