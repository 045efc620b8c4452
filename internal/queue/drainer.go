package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/callscope/outbound-delivery/internal/worker"
)

// DueSelector lists deliveries eligible for an attempt, oldest first.
type DueSelector interface {
	SelectDueIDs(ctx context.Context, batchSize int) ([]string, error)
}

// DeliveryRunner executes one delivery attempt.
type DeliveryRunner interface {
	Deliver(ctx context.Context, deliveryID string) worker.Outcome
}

// DrainStats reports one drain cycle for observability.
type DrainStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Drainer periodically pulls due deliveries (pending, or retrying with
// elapsed backoff) and feeds them to the delivery worker with bounded
// parallelism, so one stuck subscriber cannot hold up the rest of a batch.
type Drainer struct {
	due    DueSelector
	runner DeliveryRunner
	lock   *DrainLock
	logger *slog.Logger

	batchSize   int
	concurrency int
	interval    time.Duration
}

// NewDrainer creates a drainer. lock may be nil for single-instance
// deployments; with a lock, concurrent instances take turns draining.
func NewDrainer(due DueSelector, runner DeliveryRunner, lock *DrainLock, logger *slog.Logger) *Drainer {
	return &Drainer{
		due:         due,
		runner:      runner,
		lock:        lock,
		logger:      logger,
		batchSize:   50,
		concurrency: 8,
		interval:    15 * time.Second,
	}
}

// WithBatchSize sets how many due rows one cycle pulls.
func (d *Drainer) WithBatchSize(n int) *Drainer {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

// WithConcurrency bounds how many deliveries run in parallel per cycle.
func (d *Drainer) WithConcurrency(n int) *Drainer {
	if n > 0 {
		d.concurrency = n
	}
	return d
}

// WithInterval sets the period of the Run loop.
func (d *Drainer) WithInterval(interval time.Duration) *Drainer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// DrainOnce runs one drain cycle. An empty cycle is a no-op, not an error.
func (d *Drainer) DrainOnce(ctx context.Context) (DrainStats, error) {
	if d.lock != nil {
		acquired, err := d.lock.Acquire(ctx)
		if err != nil {
			return DrainStats{}, err
		}
		if !acquired {
			// Another instance is draining.
			return DrainStats{}, nil
		}
		defer d.lock.Release(ctx)
	}

	ids, err := d.due.SelectDueIDs(ctx, d.batchSize)
	if err != nil {
		return DrainStats{}, err
	}
	if len(ids) == 0 {
		return DrainStats{}, nil
	}

	jobs := make(chan string)
	outcomes := make(chan worker.Outcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				outcomes <- d.runner.Deliver(ctx, id)
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	var stats DrainStats
	for outcome := range outcomes {
		switch outcome {
		case worker.OutcomeDelivered:
			stats.Processed++
			stats.Succeeded++
		case worker.OutcomeRetrying, worker.OutcomeFailed:
			stats.Processed++
			stats.Failed++
		}
		// OutcomeSkipped rows were claimed elsewhere or deferred; they are
		// not this cycle's work.
	}

	d.logger.Info("drain cycle complete",
		"eligible", len(ids),
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return stats, nil
}

// Run drains on a fixed interval until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	d.logger.Info("queue drainer started", "interval", d.interval, "batch_size", d.batchSize)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("queue drainer stopping")
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error("drain cycle failed", "error", err)
			}
		}
	}
}
