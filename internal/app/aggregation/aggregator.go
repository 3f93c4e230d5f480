// Package aggregation merges an owner's project reports into their public
// profile and runs the claim/process/complete worker loop that drives it.
package aggregation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
	"github.com/stackfolio/stackfolio/internal/infra/blob"
	"github.com/stackfolio/stackfolio/pkg/common/logger"
)

// Aggregator rebuilds one owner's profile from their current reports and
// publishes it to object storage and the search index.
type Aggregator struct {
	reports profile.ReportStore
	index   profile.SearchIndex

	log    *logger.Logger
	tracer trace.Tracer
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(reports profile.ReportStore, index profile.SearchIndex, log *logger.Logger, tracer trace.Tracer) *Aggregator {
	return &Aggregator{reports: reports, index: index, log: log, tracer: tracer}
}

// AggregateOwner merges all of the owner's current reports and publishes the
// result. Returns profile.ErrNoReports when the owner has nothing to merge;
// individual unreadable or corrupt reports are skipped, not fatal.
func (a *Aggregator) AggregateOwner(ctx context.Context, ownerID string) error {
	ctx, span := a.tracer.Start(ctx, "aggregation.aggregate_owner",
		trace.WithAttributes(attribute.String("owner_id", ownerID)))
	defer span.End()

	objects, err := a.reports.ListReports(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("listing reports for %s: %w", ownerID, err)
	}

	reports := make([]*profile.Report, 0, len(objects))
	for _, obj := range objects {
		report, err := a.loadReport(ctx, ownerID, obj.Key)
		if err != nil {
			// A single bad report must not block the rest of the merge.
			a.log.Warn(ctx, "Skipping unreadable report",
				"owner_id", ownerID,
				"key", obj.Key,
				"error", err,
			)
			continue
		}
		reports = append(reports, report)
	}

	merged, err := profile.Merge(ownerID, reports)
	if err != nil {
		return err
	}

	doc, err := merged.Canonical()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("serializing profile for %s: %w", ownerID, err)
	}

	if err := a.reports.PutProfile(ctx, ownerID, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("storing profile for %s: %w", ownerID, err)
	}

	if err := a.index.UpsertProfile(ctx, ownerID, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("indexing profile for %s: %w", ownerID, err)
	}

	span.SetAttributes(attribute.Int("report_count", len(reports)))
	a.log.Info(ctx, "Aggregated profile",
		"owner_id", ownerID,
		"report_count", len(reports),
	)
	return nil
}

func (a *Aggregator) loadReport(ctx context.Context, ownerID, key string) (*profile.Report, error) {
	data, err := a.reports.GetReport(ctx, key)
	if err != nil {
		return nil, err
	}

	report, err := profile.ParseReport(data)
	if err != nil {
		return nil, err
	}

	// The key is authoritative for identity; payloads cannot claim another
	// owner's reports.
	keyOwner, projectID, err := blob.ParseLatestReportKey(key)
	if err != nil {
		return nil, err
	}
	if keyOwner != ownerID {
		return nil, fmt.Errorf("report key %s does not belong to owner %s", key, ownerID)
	}
	report.OwnerID = ownerID
	report.ProjectID = projectID
	return report, nil
}
