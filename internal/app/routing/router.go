// Package routing files incoming report submissions: it validates the
// payload, resolves which project the report belongs to via the commit
// ownership ledger, moves the object into its permanent location, and
// queues the owner for re-aggregation.
package routing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackfolio/stackfolio/internal/domain/ownership"
	"github.com/stackfolio/stackfolio/internal/domain/profile"
	"github.com/stackfolio/stackfolio/internal/domain/queue"
	"github.com/stackfolio/stackfolio/internal/infra/blob"
	"github.com/stackfolio/stackfolio/pkg/common/logger"
	"github.com/stackfolio/stackfolio/pkg/common/uuid"
)

// ObjectStore is the slice of the blob store the router needs.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	DeleteObject(ctx context.Context, key string) error
}

// Router processes one submission at a time from the inbox.
type Router struct {
	objects ObjectStore
	commits ownership.Repository
	jobs    queue.JobRepository

	log     *logger.Logger
	tracer  trace.Tracer
	metrics RoutingMetrics
}

// NewRouter creates a router over the given stores.
func NewRouter(
	objects ObjectStore,
	commits ownership.Repository,
	jobs queue.JobRepository,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics RoutingMetrics,
) *Router {
	return &Router{
		objects: objects,
		commits: commits,
		jobs:    jobs,
		log:     log,
		tracer:  tracer,
		metrics: metrics,
	}
}

// RouteSubmission files the inbox object at key. Invalid submissions are
// dropped from the inbox and reported as routed-with-rejection rather than
// returned as errors, so the event is not redelivered for a payload that
// can never succeed. Infrastructure failures are returned and leave the
// inbox object in place.
func (r *Router) RouteSubmission(ctx context.Context, key string) error {
	ctx, span := r.tracer.Start(ctx, "routing.route_submission",
		trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	ownerID, submittedAt, err := blob.ParseInboxKey(key)
	if err != nil {
		return r.reject(ctx, key, err)
	}
	span.SetAttributes(attribute.String("owner_id", ownerID))

	payload, err := r.objects.GetObject(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetching submission %s: %w", key, err)
	}

	report, commits, err := validateSubmission(payload)
	if err != nil {
		return r.reject(ctx, key, err)
	}

	projectID, minted, err := r.resolveProject(ctx, ownerID, commits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := r.commits.AddCommits(ctx, ownerID, projectID, commits); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := r.fileReport(ctx, key, ownerID, projectID, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := r.jobs.RegisterSubmission(ctx, ownerID, submittedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("queueing aggregation for %s: %w", ownerID, err)
	}

	r.metrics.IncSubmissionsRouted(ctx)
	r.log.Info(ctx, "Routed submission",
		"owner_id", ownerID,
		"project_id", projectID,
		"project_minted", minted,
		"key", key,
	)
	return nil
}

// maxLookupCommits caps how many commits are sent to the ownership lookup;
// a handful is enough to recognise a project and keeps the query bounded
// for huge histories.
const maxLookupCommits = 50

// resolveProject matches the report's commits against the ownership ledger
// and mints a fresh project ID when nothing matches.
func (r *Router) resolveProject(ctx context.Context, ownerID string, commits []ownership.Commit) (string, bool, error) {
	lookup := commits
	if len(lookup) > maxLookupCommits {
		lookup = lookup[:maxLookupCommits]
	}

	projectID, found, err := r.commits.FindProject(ctx, ownerID, lookup)
	if err != nil {
		return "", false, fmt.Errorf("matching project for %s: %w", ownerID, err)
	}
	if found {
		r.metrics.IncProjectsMatched(ctx)
		return projectID, false, nil
	}
	r.metrics.IncProjectsMinted(ctx)
	return uuid.New().String(), true, nil
}

// fileReport copies the submission into its immutable filed location and
// the project's current-report slot, then clears the inbox. The immutable
// copy lands first so a crash between the copies never loses the payload.
func (r *Router) fileReport(ctx context.Context, inboxKey, ownerID, projectID string, report *profile.Report) error {
	filedKey := blob.ReportKey(ownerID, projectID, report.LastCommitEpoch, report.LastCommitSHA1)
	if err := r.objects.CopyObject(ctx, inboxKey, filedKey); err != nil {
		return fmt.Errorf("filing report %s: %w", filedKey, err)
	}

	latestKey := blob.LatestReportKey(ownerID, projectID)
	if err := r.objects.CopyObject(ctx, inboxKey, latestKey); err != nil {
		return fmt.Errorf("updating current report %s: %w", latestKey, err)
	}

	if err := r.objects.DeleteObject(ctx, inboxKey); err != nil {
		return fmt.Errorf("clearing inbox %s: %w", inboxKey, err)
	}
	return nil
}

func (r *Router) reject(ctx context.Context, key string, cause error) error {
	r.metrics.IncSubmissionsRejected(ctx)
	r.log.Warn(ctx, "Rejecting invalid submission",
		"key", key,
		"error", cause,
	)
	// Drop the object so the inbox does not accumulate poison payloads.
	if err := r.objects.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("dropping invalid submission %s: %w", key, err)
	}
	return nil
}

// validateSubmission decodes the payload and checks the fields the router
// depends on: a timestamp, a full SHA-1 of the contributor's last commit,
// its commit time, and a parseable commit list.
func validateSubmission(payload []byte) (*profile.Report, []ownership.Commit, error) {
	report, err := profile.ParseReport(payload)
	if err != nil {
		return nil, nil, err
	}
	if report.Timestamp.IsZero() {
		return nil, nil, fmt.Errorf("report missing timestamp")
	}
	if err := ownership.ValidateSha1(report.LastCommitSHA1); err != nil {
		return nil, nil, err
	}
	if report.LastCommitEpoch <= 0 {
		return nil, nil, fmt.Errorf("report missing last commit time")
	}
	if len(report.ProjectsIncluded) != 1 {
		return nil, nil, fmt.Errorf("report must cover exactly one project, got %d", len(report.ProjectsIncluded))
	}

	commits, err := ownership.ParseCommitPairs(report.ProjectsIncluded[0].Commits)
	if err != nil {
		return nil, nil, err
	}
	if len(commits) == 0 {
		return nil, nil, fmt.Errorf("report has no contributor commits")
	}
	return report, commits, nil
}
