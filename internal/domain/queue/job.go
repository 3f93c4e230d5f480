// Package queue contains the domain model for the aggregation job queue.
// Each owner has at most one job row that tracks when reports were last
// submitted, when the profile was last aggregated, and any in-flight lease.
package queue

import (
	"time"

	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

// Job is the per-owner aggregation job record. A job becomes eligible for
// claiming when a submission arrives that is newer than the last completed
// aggregation and no other worker holds a lease on it.
type Job struct {
	ownerID          string
	lastSubmissionTS *time.Time
	reportTS         *time.Time
	leaseID          *uuid.UUID
	leaseTS          *time.Time
	failCounter      int
}

// NewJob creates a job record for an owner whose first submission arrived at
// submittedAt.
func NewJob(ownerID string, submittedAt time.Time) *Job {
	ts := submittedAt
	return &Job{
		ownerID:          ownerID,
		lastSubmissionTS: &ts,
	}
}

// ReconstructJob rebuilds a job from persisted state. It performs no
// validation; storage is trusted to hand back what was written.
func ReconstructJob(
	ownerID string,
	lastSubmissionTS *time.Time,
	reportTS *time.Time,
	leaseID *uuid.UUID,
	leaseTS *time.Time,
	failCounter int,
) *Job {
	return &Job{
		ownerID:          ownerID,
		lastSubmissionTS: lastSubmissionTS,
		reportTS:         reportTS,
		leaseID:          leaseID,
		leaseTS:          leaseTS,
		failCounter:      failCounter,
	}
}

// OwnerID returns the owner this job aggregates for.
func (j *Job) OwnerID() string { return j.ownerID }

// LastSubmissionTS returns when the owner's latest report submission was
// recorded, or nil if the pending-work marker has been cleared.
func (j *Job) LastSubmissionTS() *time.Time { return j.lastSubmissionTS }

// ReportTS returns when the owner's profile was last successfully
// aggregated, or nil if it never was.
func (j *Job) ReportTS() *time.Time { return j.reportTS }

// LeaseID returns the lease currently held on this job, or nil.
func (j *Job) LeaseID() *uuid.UUID { return j.leaseID }

// LeaseTS returns when the current lease was taken, or nil.
func (j *Job) LeaseTS() *time.Time { return j.leaseTS }

// FailCounter returns how many times this job has been claimed without a
// completed aggregation since the counter was last reset.
func (j *Job) FailCounter() int { return j.failCounter }

// Eligible reports whether the job qualifies for claiming: there is a
// pending submission, it is newer than the last completed aggregation, and
// no lease is active.
func (j *Job) Eligible() bool {
	if j.lastSubmissionTS == nil || j.leaseID != nil {
		return false
	}
	return j.reportTS == nil || j.lastSubmissionTS.After(*j.reportTS)
}

// Lease marks the job as claimed. The fail counter increments on every claim
// and is only reset by a successful completion, so repeatedly crashing
// workers leave a visible trail on the row.
func (j *Job) Lease(leaseID uuid.UUID, at time.Time) {
	id, ts := leaseID, at
	j.leaseID = &id
	j.leaseTS = &ts
	j.failCounter++
}

// Complete records a successful aggregation at the given time, clearing the
// lease and resetting the fail counter.
func (j *Job) Complete(at time.Time) {
	ts := at
	j.reportTS = &ts
	j.leaseID = nil
	j.leaseTS = nil
	j.failCounter = 0
}

// Abandon clears the lease and the pending-submission marker without
// recording a completed aggregation. The job stops being eligible until a
// new submission arrives; the fail counter is left intact as an audit trail.
func (j *Job) Abandon() {
	j.leaseID = nil
	j.leaseTS = nil
	j.lastSubmissionTS = nil
}

// ClearLease releases the lease without touching anything else. Used when a
// stale lease is reclaimed so the job becomes claimable again.
func (j *Job) ClearLease() {
	j.leaseID = nil
	j.leaseTS = nil
}

// RecordSubmission advances the last-submission watermark and wipes the fail
// counter: a fresh submission gives the job a clean slate. Timestamps never
// regress; an older submission time than the current watermark only resets
// the counter.
func (j *Job) RecordSubmission(at time.Time) {
	j.failCounter = 0
	if j.lastSubmissionTS != nil && !at.After(*j.lastSubmissionTS) {
		return
	}
	ts := at
	j.lastSubmissionTS = &ts
}
