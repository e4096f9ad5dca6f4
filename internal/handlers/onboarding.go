package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning/registration"
)

// FunctionOnboarding names the onboarding Lambda in logs and metrics.
const FunctionOnboarding = "onboarding"

// Teardown budget settings. The reserve is kept back from the Lambda
// deadline for the StackSet delete and the custom resource response.
const (
	DeadlineReserve       = registration.StackSetDeleteTimeout + time.Second
	DefaultTeardownBudget = 14 * time.Minute
)

// Onboarding handles the custom resource that owns the StackSet.
type Onboarding struct {
	setup Setup
}

// NewOnboarding returns an Onboarding handler.
func NewOnboarding(setup Setup) *Onboarding {
	return &Onboarding{setup: setup}
}

// Handle implements cfn.CustomResourceFunction. Create and Update ensure the
// StackSet; Delete tears it down within the remaining invocation time.
func (h *Onboarding) Handle(ctx context.Context, evt cfn.Event) (physicalID string, data map[string]interface{}, err error) {
	physicalID = evt.PhysicalResourceID

	err = invoke(ctx, FunctionOnboarding, h.setup, config.Config.ValidateRegistration, func(ctx context.Context, env *Env) error {
		log := logr.FromContextOrDiscard(ctx).WithValues("requestType", evt.RequestType, "logicalResourceID", evt.LogicalResourceID)
		ctrl := registration.New(env.Config, env.Backend, env.Publisher, registration.WithSleeper(env.sleeper()))

		switch evt.RequestType {
		case cfn.RequestCreate, cfn.RequestUpdate:
			name, created, err := ctrl.Ensure(ctx)
			if err != nil {
				return err
			}
			physicalID = name
			data = map[string]interface{}{"StackSetName": name, "Created": created}
			log.Info("Stack set ensured", "stackSet", name, "created", created)
		case cfn.RequestDelete:
			if physicalID == "" {
				physicalID = env.Config.StackSetName
			}
			budget := TeardownBudget(ctx, time.Now())
			log.Info("Tearing down stack set", "stackSet", env.Config.StackSetName, "budget", budget)
			return ctrl.Teardown(ctx, budget)
		default:
			return fmt.Errorf("unsupported request type %q", evt.RequestType)
		}
		return nil
	})
	return physicalID, data, err
}

// TeardownBudget is the time left before the context deadline, minus
// DeadlineReserve. Without a deadline DefaultTeardownBudget applies.
func TeardownBudget(ctx context.Context, now time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultTeardownBudget
	}
	budget := deadline.Sub(now) - DeadlineReserve
	if budget < 0 {
		return 0
	}
	return budget
}
