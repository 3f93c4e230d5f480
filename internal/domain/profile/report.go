// Package profile contains the domain model for raw stack reports and the
// aggregated developer profile derived from them. A raw report describes one
// project's technology usage as analyzed on the developer's machine; the
// profile is the deterministic merge of every report an owner has submitted.
package profile

import (
	"encoding/json"
	"fmt"
	"time"
)

// Report is one immutable submitted stack analysis for one project under one
// owner. Reports are never mutated after creation; newer submissions for the
// same project supersede older ones in object storage.
type Report struct {
	// OwnerID and ProjectID are not part of the submitted payload; the
	// pipeline stamps them from the object key when the report is filed.
	OwnerID   string `json:"owner_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	// Timestamp is embedded by the client tool when the report is produced.
	// The merge uses it to decide which report's identity fields win.
	Timestamp time.Time `json:"timestamp"`

	DisplayName   string   `json:"display_name,omitempty"`
	PublicContact *Contact `json:"public_contact,omitempty"`

	// Tech is keyed by technology name (language, framework). Arbitrary keys
	// are expected; each maps onto a fixed aggregation record.
	Tech map[string]*TechStat `json:"tech,omitempty"`

	// ProjectsIncluded holds the per-project overview. A valid project
	// report contains exactly one entry.
	ProjectsIncluded []ProjectOverview `json:"projects_included,omitempty"`

	LastCommitSHA1  string `json:"last_contributor_commit_sha1,omitempty"`
	LastCommitEpoch int64  `json:"last_contributor_commit_date_epoch,omitempty"`
}

// Contact is the owner-provided public contact block.
type Contact struct {
	Email    string `json:"email,omitempty"`
	URL      string `json:"url,omitempty"`
	Location string `json:"location,omitempty"`
}

// TechStat is the per-technology aggregation record. All fields combine
// associatively so merging is order-tolerant.
type TechStat struct {
	Files     int `json:"files"`
	CodeLines int `json:"code_lines"`

	// Keywords maps keyword to occurrence count.
	Keywords map[string]int `json:"keywords,omitempty"`

	// Packages is the set of referenced packages, kept sorted.
	Packages []string `json:"pkgs,omitempty"`

	// History maps YYYY-MM to the number of commits observed that month.
	History map[string]int `json:"history,omitempty"`

	FirstUsedEpoch int64 `json:"first_used_epoch,omitempty"`
	LastUsedEpoch  int64 `json:"last_used_epoch,omitempty"`
}

// ProjectOverview summarizes the single project a raw report covers.
type ProjectOverview struct {
	ProjectID        string `json:"project_id,omitempty"`
	ContributorLines int    `json:"contributor_lines,omitempty"`
	LastCommitEpoch  int64  `json:"last_commit_epoch,omitempty"`

	// Commits lists contributor commits as "<8-hex-sha>_<epoch>" pairs,
	// used for cross-account project matching.
	Commits []string `json:"commits,omitempty"`
}

// ParseReport decodes a raw report payload.
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	return &r, nil
}
