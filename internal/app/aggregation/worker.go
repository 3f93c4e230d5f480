package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
	"github.com/stackfolio/stackfolio/internal/domain/queue"
	"github.com/stackfolio/stackfolio/pkg/common"
	"github.com/stackfolio/stackfolio/pkg/common/logger"
	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

// WorkerConfig tunes the claim/process loop.
type WorkerConfig struct {
	// BatchSize is the maximum number of jobs claimed per cycle.
	BatchSize int
	// Parallelism bounds how many owners are merged concurrently.
	Parallelism int
	// CycleInterval is the minimum time between claim cycles.
	CycleInterval time.Duration
	// LeaseTimeout is how long a lease may be held before it is considered
	// abandoned by a dead worker.
	LeaseTimeout time.Duration
	// ReclaimInterval is how often stale leases are swept.
	ReclaimInterval time.Duration
	// MaxAttempts is the attempt at which a still-failing job is given up
	// on until a fresh submission arrives.
	MaxAttempts int
	// MaxConsecutiveErrors is how many claim cycles may fail in a row
	// before the worker treats the job store as unreachable and exits.
	MaxConsecutiveErrors int
}

// DefaultWorkerConfig mirrors the pipeline's production tuning.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:            100,
		Parallelism:          20,
		CycleInterval:        10 * time.Second,
		LeaseTimeout:         5 * time.Minute,
		ReclaimInterval:      time.Minute,
		MaxAttempts:          3,
		MaxConsecutiveErrors: 10,
	}
}

// Worker drives the aggregation queue: it claims batches of eligible jobs
// under a fresh lease, merges each owner's reports in parallel, and settles
// every claimed job as completed or abandoned.
type Worker struct {
	jobs       queue.JobRepository
	aggregator *Aggregator

	cfg     WorkerConfig
	limiter *common.RateLimiter

	log     *logger.Logger
	metrics AggregationMetrics
}

// NewWorker creates a worker over the given job queue and aggregator.
func NewWorker(
	jobs queue.JobRepository,
	aggregator *Aggregator,
	cfg WorkerConfig,
	log *logger.Logger,
	metrics AggregationMetrics,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultWorkerConfig().Parallelism
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultWorkerConfig().CycleInterval
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = DefaultWorkerConfig().LeaseTimeout
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = DefaultWorkerConfig().ReclaimInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultWorkerConfig().MaxAttempts
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultWorkerConfig().MaxConsecutiveErrors
	}

	return &Worker{
		jobs:       jobs,
		aggregator: aggregator,
		cfg:        cfg,
		limiter:    common.NewRateLimiter(1.0/cfg.CycleInterval.Seconds(), 1),
		log:        log,
		metrics:    metrics,
	}
}

// Run blocks processing the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "Aggregation worker starting",
		"batch_size", w.cfg.BatchSize,
		"parallelism", w.cfg.Parallelism,
		"cycle_interval", w.cfg.CycleInterval.String(),
		"lease_timeout", w.cfg.LeaseTimeout.String(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.reclaimLoop(ctx) })
	g.Go(func() error { return w.claimLoop(ctx) })
	return g.Wait()
}

func (w *Worker) claimLoop(ctx context.Context) error {
	consecutiveErrors := 0
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := w.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			consecutiveErrors++
			w.log.Error(ctx, "Claim cycle failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)
			// A run of failed cycles means the job store is unreachable;
			// exit so the process restarts instead of spinning blind.
			if consecutiveErrors >= w.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("job store unreachable after %d consecutive claim failures: %w", consecutiveErrors, err)
			}
			continue
		}
		consecutiveErrors = 0
	}
}

// runCycle claims one batch under a fresh lease and settles every job in it.
func (w *Worker) runCycle(ctx context.Context) error {
	leaseID := uuid.New()

	claimed, err := w.jobs.Claim(ctx, leaseID, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	w.metrics.ObserveClaimBatchSize(ctx, len(claimed))
	if len(claimed) == 0 {
		return nil
	}
	w.metrics.IncJobsClaimed(ctx, len(claimed))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Parallelism)
	for _, job := range claimed {
		g.Go(func() error {
			w.processJob(ctx, job, leaseID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job, leaseID uuid.UUID) {
	ownerID := job.OwnerID()

	start := time.Now()
	err := w.aggregator.AggregateOwner(ctx, ownerID)
	w.metrics.ObserveMergeDuration(ctx, time.Since(start))

	switch {
	case err == nil, errors.Is(err, profile.ErrNoReports):
		// No reports is a benign outcome: the job completes so it stops
		// being re-claimed for a submission that routed to nothing.
		w.completeJob(ctx, job, leaseID)
	case job.FailCounter() >= w.cfg.MaxAttempts:
		// Claiming already bumped the counter, so the threshold check sees
		// the current attempt included.
		w.metrics.IncJobErrors(ctx)
		w.log.Error(ctx, "Aggregation failed on final attempt",
			"owner_id", ownerID,
			"attempt", job.FailCounter(),
			"error", err,
		)
		w.abandonJob(ctx, job, leaseID)
	default:
		w.metrics.IncJobErrors(ctx)
		w.log.Error(ctx, "Aggregation failed, leaving lease to expire",
			"owner_id", ownerID,
			"attempt", job.FailCounter(),
			"error", err,
		)
		// The lease is left in place; the reclaim sweep frees the job for
		// another attempt after the timeout.
	}
}

func (w *Worker) completeJob(ctx context.Context, job *queue.Job, leaseID uuid.UUID) {
	owned, err := w.jobs.Complete(ctx, job.OwnerID(), leaseID)
	if err != nil {
		w.metrics.IncJobErrors(ctx)
		w.log.Error(ctx, "Failed to complete job", "owner_id", job.OwnerID(), "error", err)
		return
	}
	if !owned {
		w.log.Warn(ctx, "Lost lease before completing job", "owner_id", job.OwnerID())
		return
	}
	w.metrics.IncJobsCompleted(ctx)
}

func (w *Worker) abandonJob(ctx context.Context, job *queue.Job, leaseID uuid.UUID) {
	owned, err := w.jobs.GiveUp(ctx, job.OwnerID(), leaseID)
	if err != nil {
		w.metrics.IncJobErrors(ctx)
		w.log.Error(ctx, "Failed to give up job", "owner_id", job.OwnerID(), "error", err)
		return
	}
	if !owned {
		w.log.Warn(ctx, "Lost lease before giving up job", "owner_id", job.OwnerID())
		return
	}
	w.metrics.IncJobsAbandoned(ctx)
	w.log.Warn(ctx, "Gave up on job after repeated failures",
		"owner_id", job.OwnerID(),
		"attempts", job.FailCounter(),
	)
}

func (w *Worker) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-w.cfg.LeaseTimeout)
			reclaimed, err := w.jobs.ReclaimStaleLeases(ctx, cutoff)
			if err != nil {
				w.log.Error(ctx, "Failed to reclaim stale leases", "error", err)
				continue
			}
			if reclaimed > 0 {
				w.metrics.IncLeasesReclaimed(ctx, int(reclaimed))
				w.log.Info(ctx, "Reclaimed stale leases", "count", reclaimed)
			}
		}
	}
}
