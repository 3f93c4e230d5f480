// Package memory provides an in-memory commit ownership ledger for tests
// and local development.
package memory

import (
	"context"
	"sync"

	"github.com/stackfolio/stackfolio/internal/domain/ownership"
)

var _ ownership.Repository = (*CommitStore)(nil)

type commitKey struct {
	hashPrefix  string
	commitEpoch int64
	ownerID     string
}

type filing struct {
	projectID string
	seq       uint64
}

// CommitStore is a thread-safe in-memory ownership.Repository.
type CommitStore struct {
	mu      sync.RWMutex
	records map[commitKey]filing // first filing wins
	seq     uint64
}

// NewCommitStore creates an empty in-memory ledger.
func NewCommitStore() *CommitStore {
	return &CommitStore{records: make(map[commitKey]filing)}
}

func (s *CommitStore) AddCommits(_ context.Context, ownerID, projectID string, commits []ownership.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range commits {
		key := commitKey{hashPrefix: c.HashPrefix, commitEpoch: c.CommitEpoch, ownerID: ownerID}
		if _, exists := s.records[key]; !exists {
			s.seq++
			s.records[key] = filing{projectID: projectID, seq: s.seq}
		}
	}
	return nil
}

// FindProject resolves to the most recently filed match, mirroring the SQL
// store's created_at ordering.
func (s *CommitStore) FindProject(_ context.Context, ownerID string, commits []ownership.Commit) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best filing
	found := false
	for _, c := range commits {
		key := commitKey{hashPrefix: c.HashPrefix, commitEpoch: c.CommitEpoch, ownerID: ownerID}
		if f, ok := s.records[key]; ok && (!found || f.seq > best.seq) {
			best = f
			found = true
		}
	}
	if !found {
		return "", false, nil
	}
	return best.projectID, true, nil
}
