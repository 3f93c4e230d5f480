package queue

import (
	"context"
	"time"

	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

// JobRepository persists per-owner aggregation jobs and implements the
// lease-based claim protocol. Implementations must make Claim atomic with
// respect to concurrent claimers: no job may be handed to two workers.
type JobRepository interface {
	// RegisterSubmission upserts the job row for ownerID and advances its
	// last-submission watermark to submittedAt. The watermark never moves
	// backwards; older timestamps are absorbed silently.
	RegisterSubmission(ctx context.Context, ownerID string, submittedAt time.Time) error

	// Claim atomically leases up to limit eligible jobs under leaseID,
	// stamping the lease time and incrementing each job's fail counter.
	// Returns the claimed jobs; an empty slice means nothing was eligible.
	Claim(ctx context.Context, leaseID uuid.UUID, limit int) ([]*Job, error)

	// Complete finishes a claimed job: records the aggregation time, clears
	// the lease, and resets the fail counter. The update only applies if
	// leaseID still matches the row; the returned bool reports whether it
	// did.
	Complete(ctx context.Context, ownerID string, leaseID uuid.UUID) (bool, error)

	// GiveUp abandons a claimed job: clears the lease and the
	// pending-submission marker without recording a completion, so the job
	// parks until a fresh submission arrives. Lease-guarded like Complete.
	GiveUp(ctx context.Context, ownerID string, leaseID uuid.UUID) (bool, error)

	// Get fetches a single job row. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, ownerID string) (*Job, error)

	// ReclaimStaleLeases clears leases taken before cutoff, making jobs
	// whose workers died claimable again. Returns how many were reclaimed.
	ReclaimStaleLeases(ctx context.Context, cutoff time.Time) (int64, error)
}
