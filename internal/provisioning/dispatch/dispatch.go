// Package dispatch serializes stack instance creation against a StackSet.
//
// CloudFormation accepts one mutating operation per StackSet at a time. The
// Dispatcher checks for an in-flight operation before creating instances and,
// when it finds one, publishes the same request back to SNS after a backoff
// instead of blocking the invocation. Each delivery starts the check afresh.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/async"
)

// DefaultBackoff is the wait before a conflicting request is requeued.
const DefaultBackoff = 20 * time.Second

// ErrStackSetMissing is returned when a request names a StackSet that
// cannot be described. Instances can only be added to an existing StackSet.
var ErrStackSetMissing = errors.New("stack set does not exist")

// Outcome is how a request for one StackSet was handled.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeCreated  Outcome = "created"
	OutcomeRequeued Outcome = "requeued"
	OutcomeFailed   Outcome = "failed"
)

type state int

const (
	stateCheckConflict state = iota
	stateCreate
	stateRequeue
	stateDone
)

// Creator submits stack instance creation. Implemented by instances.Provisioner.
type Creator interface {
	Create(ctx context.Context, stackSet string, accounts, regions []string) (string, error)
}

// Dispatcher runs the check/create/requeue state machine.
type Dispatcher struct {
	backend   provisioning.Backend
	creator   Creator
	publisher provisioning.Publisher
	sleep     provisioning.Sleeper
	backoff   time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackoff sets the wait before requeueing.
func WithBackoff(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.backoff = d
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(s provisioning.Sleeper) Option {
	return func(disp *Dispatcher) {
		disp.sleep = s
	}
}

// New returns a Dispatcher.
func New(b provisioning.Backend, c Creator, p provisioning.Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:   b,
		creator:   c,
		publisher: p,
		sleep:     provisioning.Sleep,
		backoff:   DefaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit dispatches every StackSet in req concurrently and returns once all
// of them are done. Failures are joined.
func (d *Dispatcher) Submit(ctx context.Context, req provisioning.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	names := req.Names()
	tasks := make([]async.Task, 0, len(names))
	for _, name := range names {
		targets := req[name]
		tasks = append(tasks, async.Task{
			Name: name,
			Func: func(ctx context.Context) error {
				_, err := d.Dispatch(ctx, name, targets)
				return err
			},
		})
	}
	return async.RunParallel(ctx, tasks)
}

// Dispatch handles the request for a single StackSet.
func (d *Dispatcher) Dispatch(ctx context.Context, stackSet string, targets provisioning.Targets) (Outcome, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("stackSet", stackSet)
	ctx = logr.NewContext(ctx, log)

	var (
		outcome Outcome
		err     error
	)
	for st := stateCheckConflict; st != stateDone; {
		switch st {
		case stateCheckConflict:
			st, err = d.checkConflict(ctx, stackSet)
		case stateCreate:
			st, err = d.create(ctx, stackSet, targets)
			if st == stateDone && err == nil {
				outcome = OutcomeCreated
			}
		case stateRequeue:
			err = d.requeue(ctx, stackSet, targets)
			st, outcome = stateDone, OutcomeRequeued
		}
		if err != nil {
			metrics.RecordDispatchOutcome(string(OutcomeFailed))
			return OutcomeFailed, err
		}
	}

	metrics.RecordDispatchOutcome(string(outcome))
	log.Info("Dispatched provisioning request", "outcome", outcome)
	return outcome, nil
}

func (d *Dispatcher) checkConflict(ctx context.Context, stackSet string) (state, error) {
	if _, err := d.backend.DescribeStackSet(ctx, stackSet); err != nil {
		return stateDone, fmt.Errorf("%w: %s: %w", ErrStackSetMissing, stackSet, err)
	}

	for op, err := range provisioning.ListOperations(ctx, d.backend, stackSet) {
		if err != nil {
			return stateDone, fmt.Errorf("failed to list operations of %s: %w", stackSet, err)
		}
		if op.Status.InFlight() {
			logr.FromContextOrDiscard(ctx).Info("Operation in flight, requeueing",
				"operationID", op.ID, "status", op.Status)
			return stateRequeue, nil
		}
	}
	return stateCreate, nil
}

func (d *Dispatcher) create(ctx context.Context, stackSet string, targets provisioning.Targets) (state, error) {
	opID, err := d.creator.Create(ctx, stackSet, targets.Accounts, targets.Regions)
	if errors.Is(err, provisioning.ErrOperationInProgress) {
		// An operation started between the check and the create.
		logr.FromContextOrDiscard(ctx).Info("Create rejected by a concurrent operation, requeueing")
		return stateRequeue, nil
	}
	if err != nil {
		return stateDone, err
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("Created stack instances", "operationID", opID)
	return stateDone, nil
}

// requeue only fails when the wait is interrupted. Publish failures are
// logged; the sns publisher has already retried them.
func (d *Dispatcher) requeue(ctx context.Context, stackSet string, targets provisioning.Targets) error {
	log := logr.FromContextOrDiscard(ctx)
	if err := d.sleep(ctx, d.backoff); err != nil {
		return fmt.Errorf("requeue backoff for %s interrupted: %w", stackSet, err)
	}

	req := provisioning.Request{stackSet: targets}
	if err := d.publisher.Publish(ctx, req); err != nil {
		log.Error(err, "Failed to requeue provisioning request", "accounts", targets.Accounts, "regions", targets.Regions)
		return nil
	}
	log.Info("Requeued provisioning request", "backoff", d.backoff)
	return nil
}
