// Package main is the entry point for the stackfleet CLI.
//
// stackfleet is the operator companion to the onboarding and dispatcher
// Lambda functions. It registers or tears down the managed StackSet,
// submits account requests directly or through the SNS topic, and lists
// stack instances and operations.
//
// For detailed usage information, run:
//
//	stackfleet --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/stackfleet/cmd/stackfleet/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
