// Package memory provides an in-memory aggregation job store used in tests
// and local development. It mirrors the semantics of the PostgreSQL store,
// including lease guarding and claim atomicity.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stackfolio/stackfolio/internal/domain/queue"
	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

var _ queue.JobRepository = (*JobStore)(nil)

// JobStore is a thread-safe in-memory queue.JobRepository.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*queue.Job
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*queue.Job)}
}

func (s *JobStore) RegisterSubmission(_ context.Context, ownerID string, submittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ownerID]
	if !ok {
		s.jobs[ownerID] = queue.NewJob(ownerID, submittedAt)
		return nil
	}
	job.RecordSubmission(submittedAt)
	return nil
}

// maxClaimBatch matches the SQL store's per-claim ceiling.
const maxClaimBatch = 100

func (s *JobStore) Claim(_ context.Context, leaseID uuid.UUID, limit int) ([]*queue.Job, error) {
	if limit <= 0 || limit > maxClaimBatch {
		limit = maxClaimBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]*queue.Job, 0)
	for _, job := range s.jobs {
		if job.Eligible() {
			eligible = append(eligible, job)
		}
	}
	// Oldest submission first, like the SQL store's claim order.
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].LastSubmissionTS().Before(*eligible[j].LastSubmissionTS())
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]*queue.Job, 0, len(eligible))
	for _, job := range eligible {
		job.Lease(leaseID, now)
		claimed = append(claimed, cloneJob(job))
	}
	return claimed, nil
}

func (s *JobStore) Complete(_ context.Context, ownerID string, leaseID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.lockedJob(ownerID, leaseID)
	if !ok {
		return false, nil
	}
	job.Complete(time.Now().UTC())
	return true, nil
}

func (s *JobStore) GiveUp(_ context.Context, ownerID string, leaseID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.lockedJob(ownerID, leaseID)
	if !ok {
		return false, nil
	}
	job.Abandon()
	return true, nil
}

func (s *JobStore) Get(_ context.Context, ownerID string) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ownerID]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *JobStore) ReclaimStaleLeases(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed int64
	for _, job := range s.jobs {
		if job.LeaseID() != nil && job.LeaseTS().Before(cutoff) {
			job.ClearLease()
			reclaimed++
		}
	}
	return reclaimed, nil
}

// lockedJob returns the job only if leaseID still holds it.
func (s *JobStore) lockedJob(ownerID string, leaseID uuid.UUID) (*queue.Job, bool) {
	job, ok := s.jobs[ownerID]
	if !ok || job.LeaseID() == nil || *job.LeaseID() != leaseID {
		return nil, false
	}
	return job, true
}

func cloneJob(j *queue.Job) *queue.Job {
	return queue.ReconstructJob(
		j.OwnerID(),
		cloneTime(j.LastSubmissionTS()),
		cloneTime(j.ReportTS()),
		cloneUUID(j.LeaseID()),
		cloneTime(j.LeaseTS()),
		j.FailCounter(),
	)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(u *uuid.UUID) *uuid.UUID {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
