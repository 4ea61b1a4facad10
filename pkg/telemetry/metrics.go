package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/maulworks/maul/pkg/domain"
)

var (
	metricsOnce        sync.Once
	metricsInitErr     error
	decisionCounter    metric.Int64Counter
	cascadeCounter     metric.Int64Counter
	delegationCounter  metric.Int64Counter
	taskCounter        metric.Int64Counter
	oracleLatencyHisto metric.Float64Histogram
)

// RecordDecision counts one governance evaluation, partitioned by branch
// and outcome.
func RecordDecision(ctx context.Context, decision domain.ApprovalDecision) {
	if err := ensureMetrics(); err != nil {
		return
	}
	decisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision.method", string(decision.Method)),
		attribute.Bool("decision.approved", decision.Approved),
	))
}

// RecordCascade counts the events of one cascade run.
func RecordCascade(ctx context.Context, failureType domain.FailureType, events int) {
	if err := ensureMetrics(); err != nil {
		return
	}
	cascadeCounter.Add(ctx, int64(events), metric.WithAttributes(
		attribute.String("cascade.failure_type", string(failureType)),
	))
}

// RecordDelegation counts one delegation or redelegation.
func RecordDelegation(ctx context.Context, redelegated bool) {
	if err := ensureMetrics(); err != nil {
		return
	}
	delegationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("delegation.redelegated", redelegated),
	))
}

// RecordTask counts one orchestrated task and records its duration.
func RecordTask(ctx context.Context, phases int, duration time.Duration) {
	if err := ensureMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("task.phases", phases))
	taskCounter.Add(ctx, 1, attrs)
	if duration > 0 {
		oracleLatencyHisto.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("maul.engine")

		decisionCounter, metricsInitErr = meter.Int64Counter(
			"maul.governance.decisions_total",
			metric.WithDescription("Governance evaluations partitioned by branch and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		cascadeCounter, metricsInitErr = meter.Int64Counter(
			"maul.cascade.events_total",
			metric.WithDescription("Cascade events recorded across simulation runs"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		delegationCounter, metricsInitErr = meter.Int64Counter(
			"maul.delegations_total",
			metric.WithDescription("Delegations and redelegations created"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		taskCounter, metricsInitErr = meter.Int64Counter(
			"maul.tasks_total",
			metric.WithDescription("Orchestrated tasks processed"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		oracleLatencyHisto, metricsInitErr = meter.Float64Histogram(
			"maul.task.duration_milliseconds",
			metric.WithDescription("End to end task pipeline duration"),
			metric.WithUnit("ms"),
		)
	})
	return metricsInitErr
}
