// Package metrics holds the prometheus collectors for stackfleet.
//
// Lambda functions cannot be scraped, so collectors live in a dedicated
// Registry that is pushed to a Pushgateway at the end of an invocation
// when one is configured.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry collects every stackfleet metric.
var Registry = prometheus.NewRegistry()

var (
	// CloudFormation API metrics
	cloudFormationAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfleet",
			Subsystem: "cloudformation",
			Name:      "api_calls_total",
			Help:      "Total number of CloudFormation API calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	cloudFormationAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackfleet",
			Subsystem: "cloudformation",
			Name:      "api_latency_seconds",
			Help:      "Latency of CloudFormation API calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"operation"},
	)

	snsPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfleet",
			Subsystem: "sns",
			Name:      "publish_total",
			Help:      "Total number of SNS publishes by result",
		},
		[]string{"result"},
	)

	// Orchestration metrics
	dispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfleet",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Provisioning requests by dispatch outcome (created, requeued)",
		},
		[]string{"outcome"},
	)

	operationWaitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfleet",
			Subsystem: "operation",
			Name:      "wait_total",
			Help:      "Operation waits by result (terminal status or timeout)",
		},
		[]string{"result"},
	)

	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfleet",
			Subsystem: "lambda",
			Name:      "invocations_total",
			Help:      "Lambda invocations by function and result",
		},
		[]string{"function", "result"},
	)
)

func init() {
	Registry.MustRegister(
		cloudFormationAPICallsTotal,
		cloudFormationAPILatency,
		snsPublishTotal,
		dispatchOutcomesTotal,
		operationWaitTotal,
		invocationsTotal,
	)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCloudFormationCall records one CloudFormation API call.
func RecordCloudFormationCall(operation string, err error, duration time.Duration) {
	cloudFormationAPICallsTotal.WithLabelValues(operation, result(err)).Inc()
	cloudFormationAPILatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPublish records one SNS publish, after retries.
func RecordPublish(err error) {
	snsPublishTotal.WithLabelValues(result(err)).Inc()
}

// RecordDispatchOutcome records how a provisioning request was handled.
func RecordDispatchOutcome(outcome string) {
	dispatchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordOperationWait records how an operation wait ended. The result is the
// final operation status, or "timeout" when the budget ran out first.
func RecordOperationWait(result string) {
	operationWaitTotal.WithLabelValues(result).Inc()
}

// RecordInvocation records a Lambda invocation.
func RecordInvocation(function string, err error) {
	invocationsTotal.WithLabelValues(function, result(err)).Inc()
}

// Push sends the Registry to a Prometheus Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
