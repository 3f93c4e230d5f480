// Package ownership tracks which owner and project each contributor commit
// was first seen under. The router uses it to recognise the same project
// submitted from different checkouts and to mint stable project identifiers.
package ownership

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	sha1Pattern       = regexp.MustCompile(`^[0-9a-f]{40}$`)
	hashPrefixPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)
)

// CommitRecord associates one contributor commit, identified by its 8-hex
// hash prefix and commit time, with the owner and project it was filed
// under. Records are append-only; a commit is never re-assigned.
type CommitRecord struct {
	HashPrefix  string
	CommitEpoch int64
	OwnerID     string
	ProjectID   string
}

// Commit is one (hash prefix, commit time) pair as reports carry them.
type Commit struct {
	HashPrefix  string
	CommitEpoch int64
}

// ValidateSha1 checks that s is a full lowercase hex SHA-1.
func ValidateSha1(s string) error {
	if !sha1Pattern.MatchString(s) {
		return fmt.Errorf("invalid commit sha1 %q", s)
	}
	return nil
}

// ParseCommitPair splits an "<8-hex-prefix>_<epoch>" pair as embedded in
// report project overviews.
func ParseCommitPair(s string) (Commit, error) {
	idx := strings.IndexByte(s, '_')
	if idx != 8 || !hashPrefixPattern.MatchString(s[:idx]) {
		return Commit{}, fmt.Errorf("invalid commit pair %q", s)
	}
	epoch, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil || epoch <= 0 {
		return Commit{}, fmt.Errorf("invalid commit pair %q", s)
	}
	return Commit{HashPrefix: s[:idx], CommitEpoch: epoch}, nil
}

// ParseCommitPairs parses a batch of pairs, failing on the first invalid
// entry. Reports with unparseable commit lists are rejected outright rather
// than partially matched.
func ParseCommitPairs(pairs []string) ([]Commit, error) {
	out := make([]Commit, 0, len(pairs))
	for _, p := range pairs {
		c, err := ParseCommitPair(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
