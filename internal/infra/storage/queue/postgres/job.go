// Package postgres provides the PostgreSQL-backed aggregation job store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackfolio/stackfolio/internal/domain/queue"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

var _ queue.JobRepository = (*jobStore)(nil)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

type jobStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a job repository backed by the given connection pool.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{pool: pool, tracer: tracer}
}

const registerSubmissionQuery = `
INSERT INTO dev_jobs (owner_id, last_submission_ts)
VALUES ($1, $2)
ON CONFLICT (owner_id) DO UPDATE
SET last_submission_ts = GREATEST(dev_jobs.last_submission_ts, EXCLUDED.last_submission_ts),
    fail_counter = 0`

func (s *jobStore) RegisterSubmission(ctx context.Context, ownerID string, submittedAt time.Time) error {
	dbAttrs := append(defaultDBAttributes,
		attribute.String("owner_id", ownerID),
		attribute.String("submitted_at", submittedAt.Format(time.RFC3339)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.register_submission", dbAttrs, func(ctx context.Context) error {
		if _, err := s.pool.Exec(ctx, registerSubmissionQuery, ownerID, submittedAt); err != nil {
			return fmt.Errorf("registering submission for %s: %w", ownerID, err)
		}
		return nil
	})
}

// claimQuery locks a batch of eligible rows with SKIP LOCKED so concurrent
// claimers partition the queue instead of colliding, then stamps the lease
// in the same statement. The fail counter increments on every claim and is
// only reset by a successful completion.
const claimQuery = `
WITH eligible AS (
    SELECT owner_id
    FROM dev_jobs
    WHERE lease_id IS NULL
      AND last_submission_ts IS NOT NULL
      AND (report_ts IS NULL OR last_submission_ts > report_ts)
    ORDER BY last_submission_ts
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE dev_jobs d
SET lease_id = $1,
    lease_ts = now(),
    fail_counter = d.fail_counter + 1
FROM eligible e
WHERE d.owner_id = e.owner_id
RETURNING d.owner_id, d.last_submission_ts, d.report_ts, d.lease_id, d.lease_ts, d.fail_counter`

// maxClaimBatch bounds a single claim regardless of what the caller asks
// for, so one worker cannot lock up the whole queue.
const maxClaimBatch = 100

func (s *jobStore) Claim(ctx context.Context, leaseID uuid.UUID, limit int) ([]*queue.Job, error) {
	if limit <= 0 || limit > maxClaimBatch {
		limit = maxClaimBatch
	}

	dbAttrs := append(defaultDBAttributes,
		attribute.String("lease_id", leaseID.String()),
		attribute.Int("limit", limit),
	)

	var jobs []*queue.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.claim_jobs", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, claimQuery, leaseID, limit)
		if err != nil {
			return fmt.Errorf("claiming jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

const completeQuery = `
UPDATE dev_jobs
SET report_ts = now(),
    lease_id = NULL,
    lease_ts = NULL,
    fail_counter = 0
WHERE owner_id = $1 AND lease_id = $2`

func (s *jobStore) Complete(ctx context.Context, ownerID string, leaseID uuid.UUID) (bool, error) {
	return s.leaseGuardedUpdate(ctx, "postgres.complete_job", completeQuery, ownerID, leaseID)
}

const giveUpQuery = `
UPDATE dev_jobs
SET lease_id = NULL,
    lease_ts = NULL,
    last_submission_ts = NULL
WHERE owner_id = $1 AND lease_id = $2`

func (s *jobStore) GiveUp(ctx context.Context, ownerID string, leaseID uuid.UUID) (bool, error) {
	return s.leaseGuardedUpdate(ctx, "postgres.give_up_job", giveUpQuery, ownerID, leaseID)
}

// leaseGuardedUpdate applies an update only while the caller still holds the
// lease. A zero row count means someone reclaimed the lease underneath us.
func (s *jobStore) leaseGuardedUpdate(ctx context.Context, spanName, query, ownerID string, leaseID uuid.UUID) (bool, error) {
	dbAttrs := append(defaultDBAttributes,
		attribute.String("owner_id", ownerID),
		attribute.String("lease_id", leaseID.String()),
	)

	var owned bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, spanName, dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, query, ownerID, leaseID)
		if err != nil {
			return fmt.Errorf("updating job %s: %w", ownerID, err)
		}
		owned = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return owned, nil
}

const getJobQuery = `
SELECT owner_id, last_submission_ts, report_ts, lease_id, lease_ts, fail_counter
FROM dev_jobs
WHERE owner_id = $1`

func (s *jobStore) Get(ctx context.Context, ownerID string) (*queue.Job, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("owner_id", ownerID))

	var job *queue.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_job", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, getJobQuery, ownerID)
		j, err := scanJob(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return queue.ErrJobNotFound
			}
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

const reclaimQuery = `
UPDATE dev_jobs
SET lease_id = NULL,
    lease_ts = NULL
WHERE lease_id IS NOT NULL AND lease_ts < $1`

func (s *jobStore) ReclaimStaleLeases(ctx context.Context, cutoff time.Time) (int64, error) {
	dbAttrs := append(defaultDBAttributes,
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	)

	var reclaimed int64
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.reclaim_stale_leases", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, reclaimQuery, cutoff)
		if err != nil {
			return fmt.Errorf("reclaiming stale leases: %w", err)
		}
		reclaimed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reclaimed, nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		ownerID          string
		lastSubmissionTS *time.Time
		reportTS         *time.Time
		leaseID          *uuid.UUID
		leaseTS          *time.Time
		failCounter      int
	)
	if err := row.Scan(&ownerID, &lastSubmissionTS, &reportTS, &leaseID, &leaseTS, &failCounter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job row: %w", err)
	}
	return queue.ReconstructJob(ownerID, lastSubmissionTS, reportTS, leaseID, leaseTS, failCounter), nil
}
