package ownership

import "context"

// Repository persists the append-only commit ownership ledger.
type Repository interface {
	// AddCommits files a batch of commits under (ownerID, projectID).
	// Commits already present are left untouched: the first filing wins.
	AddCommits(ctx context.Context, ownerID, projectID string, commits []Commit) error

	// FindProject looks for an existing project of ownerID that shares at
	// least one commit with the given set. Both the hash prefix and the
	// commit time must match. Returns the project ID and true on a hit.
	FindProject(ctx context.Context, ownerID string, commits []Commit) (string, bool, error)
}
