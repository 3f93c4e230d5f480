package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackfolio/stackfolio/internal/domain/ownership"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
)

func setupCommitStoreTest(t *testing.T) (context.Context, *commitStore, func()) {
	t.Helper()

	pool, cleanup := storage.SetupTestContainer(t)
	store := NewCommitStore(pool, storage.NoOpTracer())
	return context.Background(), store, cleanup
}

func TestCommitStore_AddAndFind(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupCommitStoreTest(t)
	defer cleanup()

	commits := []ownership.Commit{
		{HashPrefix: "a1b2c3d4", CommitEpoch: 1700000000},
		{HashPrefix: "deadbeef", CommitEpoch: 1700000100},
	}
	require.NoError(t, store.AddCommits(ctx, "owner1", "proj-1", commits))

	// Any shared commit links back to the project.
	projectID, found, err := store.FindProject(ctx, "owner1", commits[:1])
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "proj-1", projectID)

	// No match for a different owner.
	_, found, err = store.FindProject(ctx, "owner2", commits)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommitStore_PrefixAndEpochMustBothMatch(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupCommitStoreTest(t)
	defer cleanup()

	require.NoError(t, store.AddCommits(ctx, "owner1", "proj-1", []ownership.Commit{
		{HashPrefix: "a1b2c3d4", CommitEpoch: 1700000000},
		{HashPrefix: "deadbeef", CommitEpoch: 1700000100},
	}))

	// Prefix of one stored commit paired with the epoch of another must not
	// produce a cross-product match.
	_, found, err := store.FindProject(ctx, "owner1", []ownership.Commit{
		{HashPrefix: "a1b2c3d4", CommitEpoch: 1700000100},
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommitStore_FirstFilingWins(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupCommitStoreTest(t)
	defer cleanup()

	commit := []ownership.Commit{{HashPrefix: "a1b2c3d4", CommitEpoch: 1700000000}}

	require.NoError(t, store.AddCommits(ctx, "owner1", "proj-1", commit))
	require.NoError(t, store.AddCommits(ctx, "owner1", "proj-2", commit))

	projectID, found, err := store.FindProject(ctx, "owner1", commit)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "proj-1", projectID, "re-filing the same commit must not re-assign it")
}

func TestCommitStore_EmptyBatch(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupCommitStoreTest(t)
	defer cleanup()

	require.NoError(t, store.AddCommits(ctx, "owner1", "proj-1", nil))

	_, found, err := store.FindProject(ctx, "owner1", nil)
	require.NoError(t, err)
	assert.False(t, found)
}
