package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// Submit returns the submit command.
func Submit(opts *handlers.Options) *cobra.Command {
	var (
		accounts []string
		regions  []string
		queue    bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Request stack instances for accounts",
		Long: `Submit asks for the stack set to be deployed to the given accounts.

By default the request is dispatched from the CLI: if another operation is
running on the stack set, it is put back on the SNS topic after the requeue
backoff. With --queue the request is only published and the dispatcher
Lambda handles it.

Example:
  stackfleet submit --accounts 111111111111,222222222222 --regions eu-west-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Submit(cmd.Context(), *opts, accounts, regions, queue)
		},
	}

	cmd.Flags().StringSliceVar(&accounts, "accounts", nil, "Target account IDs (required)")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "Target regions (defaults to the stack region)")
	cmd.Flags().BoolVar(&queue, "queue", false, "Publish the request to SNS instead of dispatching it")
	_ = cmd.MarkFlagRequired("accounts")

	return cmd
}

// Instances returns the instances command.
func Instances(opts *handlers.Options) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List stack instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Instances(cmd.Context(), *opts, account)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Only list instances in this account")

	return cmd
}

// Operations returns the operations command.
func Operations(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List stack set operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Operations(cmd.Context(), *opts)
		},
	}
}
