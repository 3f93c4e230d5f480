// Package postgres provides the PostgreSQL-backed commit ownership ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackfolio/stackfolio/internal/domain/ownership"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
)

var _ ownership.Repository = (*commitStore)(nil)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

type commitStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewCommitStore creates an ownership ledger backed by the given pool.
func NewCommitStore(pool *pgxpool.Pool, tracer trace.Tracer) *commitStore {
	return &commitStore{pool: pool, tracer: tracer}
}

const addCommitQuery = `
INSERT INTO commit_ownership (hash_prefix, commit_epoch, owner_id, project_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hash_prefix, commit_epoch, owner_id) DO NOTHING`

func (s *commitStore) AddCommits(ctx context.Context, ownerID, projectID string, commits []ownership.Commit) error {
	if len(commits) == 0 {
		return nil
	}

	dbAttrs := append(defaultDBAttributes,
		attribute.String("owner_id", ownerID),
		attribute.String("project_id", projectID),
		attribute.Int("commit_count", len(commits)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.add_commits", dbAttrs, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, c := range commits {
			batch.Queue(addCommitQuery, c.HashPrefix, c.CommitEpoch, ownerID, projectID)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()

		for range commits {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("filing commits for %s/%s: %w", ownerID, projectID, err)
			}
		}
		return nil
	})
}

// findProjectQuery matches on both the hash prefix and the commit time; a
// prefix collision alone is not enough to link projects. The newest filing
// wins when a commit somehow ended up under two projects.
const findProjectQuery = `
SELECT co.project_id
FROM commit_ownership co
JOIN unnest($2::text[], $3::bigint[]) AS c(hash_prefix, commit_epoch)
  ON co.hash_prefix = c.hash_prefix AND co.commit_epoch = c.commit_epoch
WHERE co.owner_id = $1
ORDER BY co.created_at DESC
LIMIT 1`

func (s *commitStore) FindProject(ctx context.Context, ownerID string, commits []ownership.Commit) (string, bool, error) {
	if len(commits) == 0 {
		return "", false, nil
	}

	prefixes := make([]string, 0, len(commits))
	epochs := make([]int64, 0, len(commits))
	for _, c := range commits {
		prefixes = append(prefixes, c.HashPrefix)
		epochs = append(epochs, c.CommitEpoch)
	}

	dbAttrs := append(defaultDBAttributes,
		attribute.String("owner_id", ownerID),
		attribute.Int("commit_count", len(commits)),
	)

	var projectID string
	found := false
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.find_project", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, findProjectQuery, ownerID, prefixes, epochs)
		if err := row.Scan(&projectID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("matching commits for %s: %w", ownerID, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return projectID, found, nil
}
