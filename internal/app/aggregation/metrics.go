package aggregation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// AggregationMetrics defines the metrics operations the worker reports.
type AggregationMetrics interface {
	IncJobsClaimed(ctx context.Context, count int)
	IncJobsCompleted(ctx context.Context)
	IncJobsAbandoned(ctx context.Context)
	IncJobErrors(ctx context.Context)
	IncLeasesReclaimed(ctx context.Context, count int)
	ObserveMergeDuration(ctx context.Context, duration time.Duration)
	ObserveClaimBatchSize(ctx context.Context, size int)
}

type aggregationMetrics struct {
	jobsClaimed     metric.Int64Counter
	jobsCompleted   metric.Int64Counter
	jobsAbandoned   metric.Int64Counter
	jobErrors       metric.Int64Counter
	leasesReclaimed metric.Int64Counter
	mergeDuration   metric.Float64Histogram
	claimBatchSize  metric.Int64Histogram
}

const namespace = "aggregator"

// NewAggregationMetrics creates the worker's metric instruments.
func NewAggregationMetrics(mp metric.MeterProvider) (*aggregationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(aggregationMetrics)
	var err error

	if m.jobsClaimed, err = meter.Int64Counter(
		"jobs_claimed_total",
		metric.WithDescription("Total number of aggregation jobs claimed"),
	); err != nil {
		return nil, err
	}

	if m.jobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of aggregation jobs completed"),
	); err != nil {
		return nil, err
	}

	if m.jobsAbandoned, err = meter.Int64Counter(
		"jobs_abandoned_total",
		metric.WithDescription("Total number of jobs abandoned after repeated failures"),
	); err != nil {
		return nil, err
	}

	if m.jobErrors, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of job processing errors"),
	); err != nil {
		return nil, err
	}

	if m.leasesReclaimed, err = meter.Int64Counter(
		"leases_reclaimed_total",
		metric.WithDescription("Total number of stale leases reclaimed"),
	); err != nil {
		return nil, err
	}

	if m.mergeDuration, err = meter.Float64Histogram(
		"merge_duration_seconds",
		metric.WithDescription("Time taken to merge one owner's reports"),
	); err != nil {
		return nil, err
	}

	if m.claimBatchSize, err = meter.Int64Histogram(
		"claim_batch_size",
		metric.WithDescription("Number of jobs returned per claim"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *aggregationMetrics) IncJobsClaimed(ctx context.Context, count int) {
	m.jobsClaimed.Add(ctx, int64(count))
}

func (m *aggregationMetrics) IncJobsCompleted(ctx context.Context) {
	m.jobsCompleted.Add(ctx, 1)
}

func (m *aggregationMetrics) IncJobsAbandoned(ctx context.Context) {
	m.jobsAbandoned.Add(ctx, 1)
}

func (m *aggregationMetrics) IncJobErrors(ctx context.Context) {
	m.jobErrors.Add(ctx, 1)
}

func (m *aggregationMetrics) IncLeasesReclaimed(ctx context.Context, count int) {
	m.leasesReclaimed.Add(ctx, int64(count))
}

func (m *aggregationMetrics) ObserveMergeDuration(ctx context.Context, duration time.Duration) {
	m.mergeDuration.Record(ctx, duration.Seconds())
}

func (m *aggregationMetrics) ObserveClaimBatchSize(ctx context.Context, size int) {
	m.claimBatchSize.Record(ctx, int64(size))
}
