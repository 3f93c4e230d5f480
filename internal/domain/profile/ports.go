package profile

import (
	"context"
	"time"
)

// ReportObject identifies one stored report without its payload.
type ReportObject struct {
	Key          string
	LastModified time.Time
}

// ReportStore abstracts the object store holding raw project reports and the
// aggregated profile documents derived from them.
type ReportStore interface {
	// ListReports returns the current report objects for an owner, one per
	// project. Order is not guaranteed.
	ListReports(ctx context.Context, ownerID string) ([]ReportObject, error)

	// GetReport fetches and decompresses a report payload by object key.
	GetReport(ctx context.Context, key string) ([]byte, error)

	// PutProfile stores the aggregated profile document for an owner,
	// replacing any previous version.
	PutProfile(ctx context.Context, ownerID string, body []byte) error
}

// SearchIndex abstracts the full-text index the aggregated profiles are
// published to for discovery.
type SearchIndex interface {
	// UpsertProfile indexes the profile document under the owner's ID,
	// replacing any previous version.
	UpsertProfile(ctx context.Context, ownerID string, body []byte) error
}
