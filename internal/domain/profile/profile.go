package profile

import (
	"encoding/json"
	"time"
)

// Profile is the aggregated cross-project view of one owner, produced by
// merging every current project report. It is the document published to
// object storage and the search index.
type Profile struct {
	OwnerID string `json:"owner_id"`

	// UpdatedAt carries the timestamp of the newest source report rather
	// than wall-clock time, so re-merging the same input set reproduces the
	// same document byte for byte.
	UpdatedAt time.Time `json:"updated_at"`

	ReportCount int `json:"report_count"`

	DisplayName   string   `json:"display_name,omitempty"`
	PublicContact *Contact `json:"public_contact,omitempty"`

	Tech map[string]*TechStat `json:"tech,omitempty"`

	// Projects is sorted by project ID.
	Projects []ProjectSummary `json:"projects,omitempty"`
}

// ProjectSummary is the per-project line item in an aggregated profile.
type ProjectSummary struct {
	ProjectID        string `json:"project_id"`
	ContributorLines int    `json:"contributor_lines,omitempty"`
	LastCommitEpoch  int64  `json:"last_commit_epoch,omitempty"`
}

// Canonical serializes the profile into its canonical JSON form. Map keys are
// emitted in sorted order and all slices are sorted at merge time, so the
// same input reports always yield identical bytes.
func (p *Profile) Canonical() ([]byte, error) {
	return json.Marshal(p)
}
