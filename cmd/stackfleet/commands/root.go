// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// Root returns the root command for the stackfleet CLI.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "stackfleet",
		Short:         "Roll a CloudFormation StackSet out to enrolled AWS accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (defaults to environment variables)")
	flags.StringVar(&opts.Profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&opts.Region, "region", "", "Management region")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	// StackSet lifecycle
	cmd.AddCommand(Ensure(opts))
	cmd.AddCommand(Teardown(opts))

	// Accounts
	cmd.AddCommand(Submit(opts))
	cmd.AddCommand(Instances(opts))
	cmd.AddCommand(Operations(opts))

	cmd.AddCommand(Version())

	return cmd
}
