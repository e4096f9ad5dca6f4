package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/instances"
)

// Instances prints the stack instances of the StackSet, optionally for one
// account only.
func Instances(ctx context.Context, opts Options, account string) error {
	ctx, cfg, clients, err := setup(ctx, opts, requireName)
	if err != nil {
		return err
	}

	all, err := provisioning.Collect(instances.New(clients.Backend).List(ctx, cfg.StackSetName, account))
	if err != nil {
		return fmt.Errorf("failed to list stack instances: %w", err)
	}

	targets := provisioning.NewTargetSet(all)
	if isInteractive() {
		fmt.Fprint(output, renderInstances(cfg.StackSetName, all, targets))
		return nil
	}
	for _, inst := range all {
		fmt.Fprintf(output, "%s\t%s\t%s\t%s\n", inst.Account, inst.Region, inst.Status, inst.StatusReason)
	}
	return nil
}

// Operations prints the operations recorded for the StackSet.
func Operations(ctx context.Context, opts Options) error {
	ctx, cfg, clients, err := setup(ctx, opts, requireName)
	if err != nil {
		return err
	}

	ops, err := provisioning.Collect(provisioning.ListOperations(ctx, clients.Backend, cfg.StackSetName))
	if err != nil {
		return fmt.Errorf("failed to list operations: %w", err)
	}

	if isInteractive() {
		fmt.Fprint(output, renderOperations(cfg.StackSetName, ops))
		return nil
	}
	for _, op := range ops {
		fmt.Fprintf(output, "%s\t%s\t%s\t%s\n", op.ID, op.Action, op.Status, formatTime(op.CreatedAt))
	}
	return nil
}
