package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// DefaultTeardownBudget bounds how long teardown waits for instance deletion.
const DefaultTeardownBudget = 14 * time.Minute

// Ensure returns the ensure command.
func Ensure(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create the stack set if it does not exist",
		Long: `Ensure registers the configured stack set in the management account.

If the stack set already exists nothing changes. On first creation the
seed accounts are published to the SNS topic so the dispatcher rolls the
stack set out to them.

Example:
  stackfleet ensure -c stackfleet.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Ensure(cmd.Context(), *opts)
		},
	}
}

// Teardown returns the teardown command.
func Teardown(opts *handlers.Options) *cobra.Command {
	var (
		budget    time.Duration
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete all stack instances and the stack set",
		Long: `Teardown deletes every stack instance of the stack set and waits for
the deletion to finish, up to --budget. The stack set itself is deleted
afterwards.

Example:
  stackfleet teardown -c stackfleet.yaml --budget 10m --yes

WARNING: stacks are not retained. Resources created by the template in
every enrolled account are removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Teardown(cmd.Context(), *opts, budget, assumeYes)
		},
	}

	cmd.Flags().DurationVar(&budget, "budget", DefaultTeardownBudget, "Maximum time to wait for instance deletion")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
