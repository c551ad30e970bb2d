// Package janitor bounds the growth of dead grants: a periodic sweep
// deletes expired or redeemed grants in small batches so no single run
// holds the store for long.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"keeper.share/internal/store"
)

type Janitor struct {
	grants    store.GrantStore
	interval  time.Duration
	batchSize int
	log       *zap.Logger
	metrics   *Metrics

	now func() time.Time
}

// New wires the sweeper. metrics may be nil.
func New(grants store.GrantStore, interval time.Duration, batchSize int, log *zap.Logger, metrics *Metrics) *Janitor {
	return &Janitor{
		grants:    grants,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run sweeps once per interval until ctx is cancelled. Sweeps execute on
// this goroutine only, so runs can never overlap; if one outlasts the
// interval the ticker drops the missed ticks and the backlog waits for the
// next one. A failed sweep is logged and retried by schedule, nothing more.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	deleted, err := j.grants.DeleteDead(ctx, j.batchSize, j.now())
	if err != nil {
		j.log.Warn("grant sweep failed", zap.Error(err))
		return
	}
	j.metrics.countDeleted(deleted)
	if deleted > 0 {
		j.log.Info("dead grants deleted", zap.Int("count", deleted))
	}
}
