package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const phaseScopeName = "jira2redmine/migrate"

// PhaseMetrics counts the per-issue outcomes of one migration run. All
// instruments are no-ops when telemetry is disabled.
type PhaseMetrics struct {
	tracer      trace.Tracer
	extracted   metric.Int64Counter
	transformed metric.Int64Counter
	pushed      metric.Int64Counter
	errors      metric.Int64Counter
}

// NewPhaseMetrics builds the pipeline instruments.
func NewPhaseMetrics() *PhaseMetrics {
	m := Meter(phaseScopeName)
	extracted, _ := m.Int64Counter("j2r.issues.extracted",
		metric.WithDescription("Jira issues upserted into staging"),
	)
	transformed, _ := m.Int64Counter("j2r.issues.transformed",
		metric.WithDescription("Issue mapping rows written by the transformer"),
	)
	pushed, _ := m.Int64Counter("j2r.issues.pushed",
		metric.WithDescription("Redmine issues created"),
	)
	errors, _ := m.Int64Counter("j2r.issues.errors",
		metric.WithDescription("Per-issue failures absorbed into row status"),
	)
	return &PhaseMetrics{
		tracer:      Tracer(phaseScopeName),
		extracted:   extracted,
		transformed: transformed,
		pushed:      pushed,
		errors:      errors,
	}
}

// StartPhase opens a span for one pipeline phase.
func (p *PhaseMetrics) StartPhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "migrate."+phase,
		trace.WithAttributes(attribute.String("j2r.phase", phase)),
	)
}

// EndPhase closes a phase span, recording err when the phase failed.
func (p *PhaseMetrics) EndPhase(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Extracted counts issues staged for one project.
func (p *PhaseMetrics) Extracted(ctx context.Context, n int64, projectKey string) {
	p.extracted.Add(ctx, n, metric.WithAttributes(attribute.String("j2r.project", projectKey)))
}

// Transformed counts one transformer outcome by bucket.
func (p *PhaseMetrics) Transformed(ctx context.Context, bucket string) {
	p.transformed.Add(ctx, 1, metric.WithAttributes(attribute.String("j2r.bucket", bucket)))
}

// Pushed counts one created Redmine issue.
func (p *PhaseMetrics) Pushed(ctx context.Context) {
	p.pushed.Add(ctx, 1)
}

// ItemError counts one absorbed per-issue failure.
func (p *PhaseMetrics) ItemError(ctx context.Context, phase string) {
	p.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("j2r.phase", phase)))
}
