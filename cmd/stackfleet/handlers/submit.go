package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/dispatch"
	"github.com/imamik/stackfleet/internal/provisioning/instances"
)

// Submit requests stack instances for accounts. Regions default to the
// configured stack region. With queue the request is published to SNS for
// the dispatcher Lambda; otherwise it is dispatched here.
func Submit(ctx context.Context, opts Options, accounts, regions []string, queue bool) error {
	ctx, cfg, clients, err := setup(ctx, opts, config.Config.Validate)
	if err != nil {
		return err
	}

	if len(regions) == 0 {
		regions = []string{cfg.StackRegion}
	}
	req := provisioning.NewRequest(cfg.StackSetName, accounts, regions)
	if err := req.Validate(); err != nil {
		return err
	}

	if queue {
		if err := clients.Publisher.Publish(ctx, req); err != nil {
			return err
		}
		fmt.Fprintf(output, "Queued %d account(s) in %d region(s) for %s\n", len(accounts), len(regions), cfg.StackSetName)
		return nil
	}

	prov := instances.New(clients.Backend, instances.WithOperationPreferences(cfg.OperationPreferences))
	disp := dispatch.New(clients.Backend, prov, clients.Publisher, dispatch.WithBackoff(cfg.RequeueBackoff), dispatch.WithSleeper(sleeper))
	outcome, err := disp.Dispatch(ctx, cfg.StackSetName, req[cfg.StackSetName])
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "Request for %s %s\n", cfg.StackSetName, outcome)
	return nil
}
