package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning/registration"
)

// Teardown deletes every stack instance and then the StackSet. Without
// assumeYes the operator is asked to confirm, which needs a terminal.
func Teardown(ctx context.Context, opts Options, budget time.Duration, assumeYes bool) error {
	ctx, cfg, clients, err := setup(ctx, opts, config.Config.ValidateTeardown)
	if err != nil {
		return err
	}

	if !assumeYes {
		if !isInteractive() {
			return errors.New("refusing to tear down without --yes in a non-interactive session")
		}
		ok, err := confirm(ctx,
			fmt.Sprintf("Delete stack set %s?", cfg.StackSetName),
			"All stack instances in every account and region are deleted first. This cannot be undone.")
		if err != nil {
			return err
		}
		if !ok {
			return ErrAborted
		}
	}

	if err := registration.New(cfg, clients.Backend, clients.Publisher, registration.WithSleeper(sleeper)).Teardown(ctx, budget); err != nil {
		return fmt.Errorf("teardown failed: %w", err)
	}
	fmt.Fprintf(output, "Teardown of %s finished\n", cfg.StackSetName)
	return nil
}
