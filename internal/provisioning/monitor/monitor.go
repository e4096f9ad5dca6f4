// Package monitor waits for asynchronous StackSet operations.
//
// A Monitor only observes: it never stops the backend operation, and a wait
// that runs out of budget reports TimedOut rather than a final status.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// ErrInvalidInterval is returned when the poll interval is not positive.
var ErrInvalidInterval = errors.New("poll interval must be positive")

// Result describes how a wait ended.
type Result struct {
	// Status is the last observed status. It is RUNNING when the wait timed
	// out before the first poll returned anything else.
	Status provisioning.OperationStatus
	// Polls counts DescribeStackSetOperation calls.
	Polls int
	// TimedOut means the budget ran out while the operation was still
	// running. The operation may yet finish on its own.
	TimedOut bool
}

// Monitor polls StackSet operations.
type Monitor struct {
	backend provisioning.Backend
	sleep   provisioning.Sleeper
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSleeper replaces the sleep between polls.
func WithSleeper(s provisioning.Sleeper) Option {
	return func(m *Monitor) {
		m.sleep = s
	}
}

// New returns a Monitor backed by b.
func New(b provisioning.Backend, opts ...Option) *Monitor {
	m := &Monitor{backend: b, sleep: provisioning.Sleep}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AwaitCompletion polls operationID every interval until it leaves RUNNING
// or deadline is used up. Each round sleeps first, then charges the sleep
// against the deadline, then reads the status. The last sleep is shortened
// so the total wait never exceeds deadline.
//
// QUEUED counts as not yet started, so the wait continues through it.
func (m *Monitor) AwaitCompletion(ctx context.Context, stackSet, operationID string, interval, deadline time.Duration) (Result, error) {
	if interval <= 0 {
		return Result{}, ErrInvalidInterval
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("stackSet", stackSet, "operationID", operationID)
	res := Result{Status: provisioning.OperationRunning}
	remaining := deadline

	for waiting(res.Status) && remaining > 0 {
		wait := min(interval, remaining)
		if err := m.sleep(ctx, wait); err != nil {
			return res, fmt.Errorf("wait for operation %s interrupted: %w", operationID, err)
		}
		remaining -= wait

		op, err := m.backend.DescribeStackSetOperation(ctx, stackSet, operationID)
		if err != nil {
			return res, fmt.Errorf("failed to poll operation %s: %w", operationID, err)
		}
		res.Polls++
		res.Status = op.Status
		log.V(1).Info("Polled operation", "status", op.Status, "remaining", remaining)
	}

	if waiting(res.Status) {
		res.TimedOut = true
		metrics.RecordOperationWait("timeout")
		log.Info("Stopped waiting for operation, budget exhausted", "status", res.Status, "polls", res.Polls)
		return res, nil
	}

	metrics.RecordOperationWait(string(res.Status))
	log.Info("Operation finished", "status", res.Status, "polls", res.Polls)
	return res, nil
}

func waiting(s provisioning.OperationStatus) bool {
	return s == provisioning.OperationRunning || s == provisioning.OperationQueued
}
