package routing

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// RoutingMetrics defines the metrics operations the router reports.
type RoutingMetrics interface {
	IncSubmissionsRouted(ctx context.Context)
	IncSubmissionsRejected(ctx context.Context)
	IncProjectsMatched(ctx context.Context)
	IncProjectsMinted(ctx context.Context)
}

type routingMetrics struct {
	submissionsRouted   metric.Int64Counter
	submissionsRejected metric.Int64Counter
	projectsMatched     metric.Int64Counter
	projectsMinted      metric.Int64Counter
}

const namespace = "router"

// NewRoutingMetrics creates the router's metric instruments.
func NewRoutingMetrics(mp metric.MeterProvider) (*routingMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(routingMetrics)
	var err error

	if m.submissionsRouted, err = meter.Int64Counter(
		"submissions_routed_total",
		metric.WithDescription("Total number of submissions filed successfully"),
	); err != nil {
		return nil, err
	}

	if m.submissionsRejected, err = meter.Int64Counter(
		"submissions_rejected_total",
		metric.WithDescription("Total number of invalid submissions dropped"),
	); err != nil {
		return nil, err
	}

	if m.projectsMatched, err = meter.Int64Counter(
		"projects_matched_total",
		metric.WithDescription("Total number of submissions matched to an existing project"),
	); err != nil {
		return nil, err
	}

	if m.projectsMinted, err = meter.Int64Counter(
		"projects_minted_total",
		metric.WithDescription("Total number of new project identifiers minted"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *routingMetrics) IncSubmissionsRouted(ctx context.Context)   { m.submissionsRouted.Add(ctx, 1) }
func (m *routingMetrics) IncSubmissionsRejected(ctx context.Context) { m.submissionsRejected.Add(ctx, 1) }
func (m *routingMetrics) IncProjectsMatched(ctx context.Context)     { m.projectsMatched.Add(ctx, 1) }
func (m *routingMetrics) IncProjectsMinted(ctx context.Context)      { m.projectsMinted.Add(ctx, 1) }
