// Package registration owns the lifecycle of the managed StackSet.
//
// Ensure creates the StackSet when it is missing and seeds the configured
// accounts once, on the run that created it. Teardown drains every stack
// instance within a time budget and then deletes the StackSet.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/instances"
	"github.com/imamik/stackfleet/internal/provisioning/lifecycle"
	"github.com/imamik/stackfleet/internal/provisioning/monitor"
)

// StackSetDeleteTimeout bounds the StackSet delete at the end of Teardown.
// The call ignores the caller's cancellation.
const StackSetDeleteTimeout = 2 * time.Second

// ErrConfirmation is returned when a freshly created StackSet cannot be
// described.
var ErrConfirmation = errors.New("stack set not readable after creation")

// Controller ensures and tears down the StackSet named in its config.
type Controller struct {
	cfg       config.Config
	backend   provisioning.Backend
	publisher provisioning.Publisher
	instances *instances.Provisioner
	monitor   *monitor.Monitor
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	sleeper provisioning.Sleeper
}

// WithSleeper replaces the sleep between teardown polls.
func WithSleeper(s provisioning.Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

// New returns a Controller for cfg.StackSetName.
func New(cfg config.Config, b provisioning.Backend, p provisioning.Publisher, opts ...Option) *Controller {
	o := options{sleeper: provisioning.Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		cfg:       cfg,
		backend:   b,
		publisher: p,
		instances: instances.New(b, instances.WithOperationPreferences(cfg.OperationPreferences)),
		monitor:   monitor.New(b, monitor.WithSleeper(o.sleeper)),
	}
}

// Ensure makes sure the StackSet exists and returns its name. created is
// true only when this call created it; only then are seed accounts sent.
func (c *Controller) Ensure(ctx context.Context) (name string, created bool, err error) {
	name = c.cfg.StackSetName
	log := logr.FromContextOrDiscard(ctx).WithValues("stackSet", name)

	_, err = c.backend.DescribeStackSet(ctx, name)
	switch {
	case err == nil:
		log.Info("Stack set exists", "region", c.cfg.ManagementRegion, "account", c.cfg.ManagementAccountID)
		return name, false, nil
	case errors.Is(err, provisioning.ErrNotFound):
		log.V(1).Info("Stack set not found, creating it")
	default:
		log.Error(err, "Failed to describe stack set, assuming it does not exist")
	}

	id, err := c.backend.CreateStackSet(ctx, c.cfg.StackSetSpec())
	if errors.Is(err, provisioning.ErrAlreadyExists) {
		log.Info("Stack set was created concurrently")
		return name, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to create stack set %s: %w", name, err)
	}

	if _, err := c.backend.DescribeStackSet(ctx, name); err != nil {
		return "", false, fmt.Errorf("%w: %s: %w", ErrConfirmation, name, err)
	}
	log.Info("Stack set created", "id", id, "region", c.cfg.ManagementRegion, "account", c.cfg.ManagementAccountID)

	c.seed(ctx, log)
	return name, true, nil
}

// seed publishes the configured seed accounts. Failures are logged only.
func (c *Controller) seed(ctx context.Context, log logr.Logger) {
	req, ok := lifecycle.FromSeedBatch(c.cfg.StackSetName, c.cfg.SeedRegions, c.cfg.SeedAccounts)
	if !ok {
		return
	}
	if err := c.publisher.Publish(ctx, req); err != nil {
		log.Error(err, "Failed to publish seed accounts", "accounts", req[c.cfg.StackSetName].Accounts)
		return
	}
	log.Info("Published seed accounts", "accounts", req[c.cfg.StackSetName].Accounts, "regions", c.cfg.SeedRegions)
}

// Teardown removes every stack instance and then the StackSet. The wait for
// instance deletion is bounded by budget; the StackSet delete is attempted
// even when that wait ran out, and its failure is logged, not returned.
func (c *Controller) Teardown(ctx context.Context, budget time.Duration) error {
	name := c.cfg.StackSetName
	log := logr.FromContextOrDiscard(ctx).WithValues("stackSet", name)

	if _, err := c.backend.DescribeStackSet(ctx, name); err != nil {
		log.Info("Stack set does not exist, nothing to tear down", "reason", err.Error())
		return nil
	}

	targets, err := c.instances.Targets(ctx, name)
	if err != nil {
		return err
	}

	if targets.Len() > 0 {
		opID, err := c.instances.Delete(ctx, name, targets, false)
		if err != nil {
			return err
		}

		res, err := c.monitor.AwaitCompletion(ctx, name, opID, c.cfg.PollInterval, budget)
		switch {
		case err != nil:
			log.Error(err, "Failed to wait for stack instance deletion", "operationID", opID)
		case res.TimedOut:
			log.Info("Stack instance deletion still running after budget", "operationID", opID, "polls", res.Polls)
		default:
			log.Info("Stack instance deletion finished", "operationID", opID, "status", res.Status)
		}
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), StackSetDeleteTimeout)
	defer cancel()
	if err := c.backend.DeleteStackSet(deleteCtx, name); err != nil {
		log.Error(err, "Failed to delete stack set")
		return nil
	}
	log.Info("Stack set deleted")
	return nil
}
