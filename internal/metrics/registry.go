package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the monitoring engine's metrics. A nil *Registry is valid
// and drops all measurements, so tests can run without a meter provider.
type Registry struct {
	EventsIngested   metric.Int64Counter
	DetectionsTotal  metric.Int64Counter
	DetectorFailures metric.Int64Counter
	AlertsCreated    metric.Int64Counter
	AlertsSuppressed metric.Int64Counter
	ActionFailures   metric.Int64Counter
	SweepDuration    metric.Float64Histogram
}

// NewRegistry creates the engine metrics on the named meter.
func NewRegistry(meterName string) (*Registry, error) {
	meter := otel.Meter(meterName)
	r := &Registry{}
	var err error

	if r.EventsIngested, err = meter.Int64Counter("monitoring.events.ingested",
		metric.WithDescription("Activity events accepted by the recorder")); err != nil {
		return nil, err
	}
	if r.DetectionsTotal, err = meter.Int64Counter("monitoring.detections",
		metric.WithDescription("Suspicious activities persisted, by type and severity")); err != nil {
		return nil, err
	}
	if r.DetectorFailures, err = meter.Int64Counter("monitoring.detector.failures",
		metric.WithDescription("Individual detector errors and panics")); err != nil {
		return nil, err
	}
	if r.AlertsCreated, err = meter.Int64Counter("monitoring.alerts.created",
		metric.WithDescription("Monitoring alerts created")); err != nil {
		return nil, err
	}
	if r.AlertsSuppressed, err = meter.Int64Counter("monitoring.alerts.suppressed",
		metric.WithDescription("Alerts suppressed by the per-subject cooldown")); err != nil {
		return nil, err
	}
	if r.ActionFailures, err = meter.Int64Counter("monitoring.action.failures",
		metric.WithDescription("Failed block/escalate/notify side effects")); err != nil {
		return nil, err
	}
	if r.SweepDuration, err = meter.Float64Histogram("monitoring.sweep.duration",
		metric.WithDescription("Scheduled sweep run duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) AddEventIngested(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.EventsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Registry) AddDetection(ctx context.Context, activityType, severity string) {
	if r == nil {
		return
	}
	r.DetectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", activityType),
		attribute.String("severity", severity)))
}

func (r *Registry) AddDetectorFailure(ctx context.Context, detector string) {
	if r == nil {
		return
	}
	r.DetectorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("detector", detector)))
}

func (r *Registry) AddAlertCreated(ctx context.Context, severity string) {
	if r == nil {
		return
	}
	r.AlertsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

func (r *Registry) AddAlertSuppressed(ctx context.Context, activityType string) {
	if r == nil {
		return
	}
	r.AlertsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", activityType)))
}

func (r *Registry) AddActionFailure(ctx context.Context, action string) {
	if r == nil {
		return
	}
	r.ActionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (r *Registry) RecordSweepDuration(ctx context.Context, job string, d time.Duration) {
	if r == nil {
		return
	}
	r.SweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("job", job)))
}
