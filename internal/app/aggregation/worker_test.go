package aggregation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackfolio/stackfolio/internal/domain/queue"
	"github.com/stackfolio/stackfolio/internal/infra/blob"
	"github.com/stackfolio/stackfolio/internal/infra/index"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
	queuemem "github.com/stackfolio/stackfolio/internal/infra/storage/queue/memory"
	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

type stubMetrics struct {
	claimed   atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64
	errors    atomic.Int64
	reclaimed atomic.Int64
}

func (m *stubMetrics) IncJobsClaimed(_ context.Context, count int) { m.claimed.Add(int64(count)) }
func (m *stubMetrics) IncJobsCompleted(context.Context)            { m.completed.Add(1) }
func (m *stubMetrics) IncJobsAbandoned(context.Context)            { m.abandoned.Add(1) }
func (m *stubMetrics) IncJobErrors(context.Context)                { m.errors.Add(1) }
func (m *stubMetrics) IncLeasesReclaimed(_ context.Context, count int) {
	m.reclaimed.Add(int64(count))
}
func (m *stubMetrics) ObserveMergeDuration(context.Context, time.Duration) {}
func (m *stubMetrics) ObserveClaimBatchSize(context.Context, int)          {}

type workerHarness struct {
	jobs    *queuemem.JobStore
	store   *blob.MemoryStore
	idx     *index.MemoryIndex
	worker  *Worker
	metrics *stubMetrics
}

func setupWorkerTest(t *testing.T, cfg WorkerConfig) *workerHarness {
	t.Helper()

	jobs := queuemem.NewJobStore()
	store := blob.NewMemoryStore()
	idx := index.NewMemoryIndex()
	metrics := &stubMetrics{}
	agg := NewAggregator(store, idx, testLogger(), storage.NoOpTracer())
	worker := NewWorker(jobs, agg, cfg, testLogger(), metrics)

	return &workerHarness{jobs: jobs, store: store, idx: idx, worker: worker, metrics: metrics}
}

func TestWorkerCycle_CompletesJobs(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{})
	ctx := context.Background()

	key := blob.LatestReportKey("owner1", "proj-a")
	require.NoError(t, h.store.PutObject(ctx, key, []byte(`{
		"timestamp": "2026-01-01T00:00:00Z",
		"tech": {"Go": {"code_lines": 100}}
	}`)))
	require.NoError(t, h.jobs.RegisterSubmission(ctx, "owner1", time.Now().UTC()))

	require.NoError(t, h.worker.runCycle(ctx))

	job, err := h.jobs.Get(ctx, "owner1")
	require.NoError(t, err)
	assert.False(t, job.Eligible())
	assert.NotNil(t, job.ReportTS())
	assert.Zero(t, job.FailCounter())

	_, ok := h.idx.Document("owner1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), h.metrics.completed.Load())
}

func TestWorkerCycle_NoReportsCompletesAsNoOp(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{})
	ctx := context.Background()

	require.NoError(t, h.jobs.RegisterSubmission(ctx, "ghost", time.Now().UTC()))

	require.NoError(t, h.worker.runCycle(ctx))

	job, err := h.jobs.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, job.Eligible(), "job must settle even without reports")
	assert.Equal(t, int64(1), h.metrics.completed.Load())

	_, ok := h.idx.Document("ghost")
	assert.False(t, ok, "nothing should be indexed")
}

func TestWorkerCycle_FailureLeavesLeaseForReclaim(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{})
	ctx := context.Background()

	// A failing index makes the aggregation error after the merge.
	h.worker.aggregator.index = failingIndex{}

	require.NoError(t, h.store.PutObject(ctx, blob.LatestReportKey("owner1", "proj-a"), []byte(`{
		"timestamp": "2026-01-01T00:00:00Z",
		"tech": {"Go": {"code_lines": 1}}
	}`)))
	require.NoError(t, h.jobs.RegisterSubmission(ctx, "owner1", time.Now().UTC()))

	require.NoError(t, h.worker.runCycle(ctx))

	job, err := h.jobs.Get(ctx, "owner1")
	require.NoError(t, err)
	assert.NotNil(t, job.LeaseID(), "lease stays held for the reclaim sweep")
	assert.Equal(t, 1, job.FailCounter())
	assert.Equal(t, int64(1), h.metrics.errors.Load())
	assert.Zero(t, h.metrics.completed.Load())
}

func TestWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{MaxAttempts: 3})
	ctx := context.Background()
	h.worker.aggregator.index = failingIndex{}

	require.NoError(t, h.store.PutObject(ctx, blob.LatestReportKey("owner1", "proj-a"), []byte(`{
		"timestamp": "2026-01-01T00:00:00Z",
		"tech": {"Go": {"code_lines": 1}}
	}`)))
	require.NoError(t, h.jobs.RegisterSubmission(ctx, "owner1", time.Now().UTC()))

	// The first two failed attempts leave the lease held; reclaim frees it
	// for the next cycle, mimicking the lease timeout.
	for i := 0; i < 2; i++ {
		require.NoError(t, h.worker.runCycle(ctx))

		job, err := h.jobs.Get(ctx, "owner1")
		require.NoError(t, err)
		assert.NotNil(t, job.LeaseID(), "attempt %d below the threshold keeps the lease", i+1)
		assert.NotNil(t, job.LastSubmissionTS())

		_, err = h.jobs.ReclaimStaleLeases(ctx, time.Now().UTC().Add(time.Hour))
		require.NoError(t, err)
	}

	// The third claim reaches MaxAttempts; when the merge fails again the
	// worker gives up.
	require.NoError(t, h.worker.runCycle(ctx))

	job, err := h.jobs.Get(ctx, "owner1")
	require.NoError(t, err)
	assert.Nil(t, job.LeaseID())
	assert.Nil(t, job.LastSubmissionTS(), "abandoned job parks until a new submission")
	assert.False(t, job.Eligible())
	assert.Equal(t, int64(1), h.metrics.abandoned.Load())
	assert.Equal(t, int64(3), h.metrics.errors.Load(), "the merge runs on every attempt")
}

func TestWorker_FinalAttemptCanStillSucceed(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{MaxAttempts: 2})
	ctx := context.Background()
	h.worker.aggregator.index = failingIndex{}

	require.NoError(t, h.store.PutObject(ctx, blob.LatestReportKey("owner1", "proj-a"), []byte(`{
		"timestamp": "2026-01-01T00:00:00Z",
		"tech": {"Go": {"code_lines": 1}}
	}`)))
	require.NoError(t, h.jobs.RegisterSubmission(ctx, "owner1", time.Now().UTC()))

	require.NoError(t, h.worker.runCycle(ctx))
	_, err := h.jobs.ReclaimStaleLeases(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	// The index recovers before the final attempt: the job must complete,
	// not be given up on the counter alone.
	h.worker.aggregator.index = h.idx
	require.NoError(t, h.worker.runCycle(ctx))

	job, err := h.jobs.Get(ctx, "owner1")
	require.NoError(t, err)
	assert.NotNil(t, job.ReportTS())
	assert.Zero(t, job.FailCounter())
	assert.Zero(t, h.metrics.abandoned.Load())
	assert.Equal(t, int64(1), h.metrics.completed.Load())
}

func TestWorkerCycle_EmptyQueue(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{})
	require.NoError(t, h.worker.runCycle(context.Background()))
	assert.Zero(t, h.metrics.claimed.Load())
}

func TestWorker_ExitsWhenJobStoreUnreachable(t *testing.T) {
	t.Parallel()

	h := setupWorkerTest(t, WorkerConfig{
		CycleInterval:        time.Millisecond,
		MaxConsecutiveErrors: 3,
	})
	h.worker.jobs = unreachableJobStore{h.jobs}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := h.worker.claimLoop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, ctx.Err(), "the loop must exit on its own, not by timeout")
}

type failingIndex struct{}

func (failingIndex) UpsertProfile(context.Context, string, []byte) error {
	return assert.AnError
}

// unreachableJobStore fails every claim, as if the database were down.
type unreachableJobStore struct {
	*queuemem.JobStore
}

func (unreachableJobStore) Claim(context.Context, uuid.UUID, int) ([]*queue.Job, error) {
	return nil, assert.AnError
}
