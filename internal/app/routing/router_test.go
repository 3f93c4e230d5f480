package routing

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackfolio/stackfolio/internal/domain/ownership"
	"github.com/stackfolio/stackfolio/internal/infra/blob"
	ownmem "github.com/stackfolio/stackfolio/internal/infra/storage/ownership/memory"
	queuemem "github.com/stackfolio/stackfolio/internal/infra/storage/queue/memory"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
	"github.com/stackfolio/stackfolio/pkg/common/logger"
)

type stubRoutingMetrics struct {
	routed, rejected, matched, minted int
}

func (m *stubRoutingMetrics) IncSubmissionsRouted(context.Context)   { m.routed++ }
func (m *stubRoutingMetrics) IncSubmissionsRejected(context.Context) { m.rejected++ }
func (m *stubRoutingMetrics) IncProjectsMatched(context.Context)     { m.matched++ }
func (m *stubRoutingMetrics) IncProjectsMinted(context.Context)      { m.minted++ }

type routerHarness struct {
	store   *blob.MemoryStore
	commits *ownmem.CommitStore
	jobs    *queuemem.JobStore
	router  *Router
	metrics *stubRoutingMetrics
}

func setupRouterTest(t *testing.T) *routerHarness {
	t.Helper()

	store := blob.NewMemoryStore()
	commits := ownmem.NewCommitStore()
	jobs := queuemem.NewJobStore()
	metrics := &stubRoutingMetrics{}
	log := logger.New(io.Discard, logger.LevelInfo, "test", nil)
	router := NewRouter(store, commits, jobs, log, storage.NoOpTracer(), metrics)

	return &routerHarness{store: store, commits: commits, jobs: jobs, router: router, metrics: metrics}
}

const testSha1 = "0123456789abcdef0123456789abcdef01234567"

func validReport(commits ...string) string {
	list := ""
	for i, c := range commits {
		if i > 0 {
			list += ","
		}
		list += fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(`{
		"timestamp": "2026-01-15T10:00:00Z",
		"display_name": "Alice",
		"tech": {"Go": {"code_lines": 100}},
		"projects_included": [{"last_commit_epoch": 1700000100, "commits": [%s]}],
		"last_contributor_commit_sha1": %q,
		"last_contributor_commit_date_epoch": 1700000100
	}`, list, testSha1)
}

func (h *routerHarness) submit(t *testing.T, ownerID string, submittedAt time.Time, payload string) string {
	t.Helper()
	key := blob.InboxKey(submittedAt, ownerID)
	require.NoError(t, h.store.PutObject(context.Background(), key, []byte(payload)))
	return key
}

func TestRouteSubmission_MintsNewProject(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	ctx := context.Background()
	submitted := time.Unix(1700000200, 0).UTC()

	key := h.submit(t, "owner1", submitted, validReport("a1b2c3d4_1700000000"))
	require.NoError(t, h.router.RouteSubmission(ctx, key))

	assert.Equal(t, 1, h.metrics.minted)
	assert.Equal(t, 1, h.metrics.routed)

	// Inbox cleared, one filed copy and one current report remain.
	keys := h.store.Keys()
	require.Len(t, keys, 2)
	assert.NotContains(t, keys, key)

	var latestKey string
	for _, k := range keys {
		if blob.IsLatestReportKey(k) {
			latestKey = k
		}
	}
	require.NotEmpty(t, latestKey)
	owner, projectID, err := blob.ParseLatestReportKey(latestKey)
	require.NoError(t, err)
	assert.Equal(t, "owner1", owner)

	// Commits were filed under the minted project.
	foundProject, found, err := h.commits.FindProject(ctx, "owner1", mustCommits(t, "a1b2c3d4_1700000000"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, projectID, foundProject)

	// The owner is queued for aggregation at the submission time.
	job, err := h.jobs.Get(ctx, "owner1")
	require.NoError(t, err)
	assert.True(t, job.Eligible())
	assert.Equal(t, submitted, *job.LastSubmissionTS())
}

func TestRouteSubmission_MatchesExistingProject(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	ctx := context.Background()

	key1 := h.submit(t, "owner1", time.Unix(1700000200, 0).UTC(), validReport("a1b2c3d4_1700000000"))
	require.NoError(t, h.router.RouteSubmission(ctx, key1))

	// Second submission shares a commit: same project, no new mint.
	key2 := h.submit(t, "owner1", time.Unix(1700000300, 0).UTC(),
		validReport("a1b2c3d4_1700000000", "deadbeef_1700000050"))
	require.NoError(t, h.router.RouteSubmission(ctx, key2))

	assert.Equal(t, 1, h.metrics.minted)
	assert.Equal(t, 1, h.metrics.matched)

	// Still a single project: one current report plus two filed copies
	// would collide on the same sha, so expect exactly one of each.
	latestCount := 0
	for _, k := range h.store.Keys() {
		if blob.IsLatestReportKey(k) {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount)
}

func TestRouteSubmission_SameCommitsDifferentOwnersStaySeparate(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	ctx := context.Background()

	key1 := h.submit(t, "owner1", time.Unix(1700000200, 0).UTC(), validReport("a1b2c3d4_1700000000"))
	require.NoError(t, h.router.RouteSubmission(ctx, key1))
	key2 := h.submit(t, "owner2", time.Unix(1700000300, 0).UTC(), validReport("a1b2c3d4_1700000000"))
	require.NoError(t, h.router.RouteSubmission(ctx, key2))

	assert.Equal(t, 2, h.metrics.minted, "ownership is per owner")
}

func TestRouteSubmission_InvalidPayloadIsDropped(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	ctx := context.Background()

	payloads := []string{
		`{{{not json`,
		`{"timestamp": "2026-01-15T10:00:00Z"}`, // no sha1
		fmt.Sprintf(`{
			"timestamp": "2026-01-15T10:00:00Z",
			"projects_included": [{"commits": ["bogus"]}],
			"last_contributor_commit_sha1": %q,
			"last_contributor_commit_date_epoch": 1700000100
		}`, testSha1), // bad commit pair
		fmt.Sprintf(`{
			"timestamp": "2026-01-15T10:00:00Z",
			"projects_included": [],
			"last_contributor_commit_sha1": %q,
			"last_contributor_commit_date_epoch": 1700000100
		}`, testSha1), // no project overview
	}

	for i, payload := range payloads {
		key := h.submit(t, "owner1", time.Unix(int64(1700000200+i), 0).UTC(), payload)
		require.NoError(t, h.router.RouteSubmission(ctx, key), "payload %d", i)
	}

	assert.Equal(t, len(payloads), h.metrics.rejected)
	assert.Empty(t, h.store.Keys(), "rejected submissions are removed from the inbox")

	// Nothing was queued.
	_, err := h.jobs.Get(ctx, "owner1")
	assert.Error(t, err)
}

func TestRouteSubmission_MalformedKeyIsDropped(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	ctx := context.Background()

	key := "queue/garbage.gzip"
	require.NoError(t, h.store.PutObject(ctx, key, []byte(validReport("a1b2c3d4_1700000000"))))

	require.NoError(t, h.router.RouteSubmission(ctx, key))
	assert.Equal(t, 1, h.metrics.rejected)
	assert.Empty(t, h.store.Keys())
}

func TestRouteSubmission_MissingObjectIsAnError(t *testing.T) {
	t.Parallel()

	h := setupRouterTest(t)
	err := h.router.RouteSubmission(context.Background(), blob.InboxKey(time.Unix(1700000200, 0), "owner1"))
	require.Error(t, err, "infrastructure failures must surface for redelivery")
	assert.Zero(t, h.metrics.rejected)
}

func mustCommits(t *testing.T, pairs ...string) []ownership.Commit {
	t.Helper()
	commits, err := ownership.ParseCommitPairs(pairs)
	require.NoError(t, err)
	return commits
}
