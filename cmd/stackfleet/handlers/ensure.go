package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning/registration"
)

// Ensure creates the StackSet if it does not exist yet.
func Ensure(ctx context.Context, opts Options) error {
	ctx, cfg, clients, err := setup(ctx, opts, config.Config.ValidateRegistration)
	if err != nil {
		return err
	}

	name, created, err := registration.New(cfg, clients.Backend, clients.Publisher, registration.WithSleeper(sleeper)).Ensure(ctx)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintln(output, successStyle.Render(fmt.Sprintf("Stack set %s created", name)))
		if seeds := cfg.SeedAccountList(); len(seeds) > 0 {
			fmt.Fprintf(output, "Seed accounts queued: %v\n", seeds)
		}
		return nil
	}
	fmt.Fprintf(output, "Stack set %s already exists\n", name)
	return nil
}
