// Package instances lists, creates, and deletes stack instances of a StackSet.
//
// Creation and deletion submit a single operation and return its id without
// waiting; callers pair them with the monitor package when they need to.
package instances

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// ErrNoTargets is returned when a create or delete names no account or region.
var ErrNoTargets = errors.New("at least one account and one region are required")

// Provisioner manages the stack instances of StackSets.
type Provisioner struct {
	backend     provisioning.Backend
	preferences provisioning.OperationPreferences
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithOperationPreferences attaches rollout preferences to every operation.
func WithOperationPreferences(p provisioning.OperationPreferences) Option {
	return func(pr *Provisioner) {
		pr.preferences = p
	}
}

// New returns a Provisioner backed by b.
func New(b provisioning.Backend, opts ...Option) *Provisioner {
	p := &Provisioner{backend: b}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// List walks every stack instance of stackSet, restricted to account when it
// is not empty. Each range over the result starts from the first page.
func (p *Provisioner) List(ctx context.Context, stackSet, account string) iter.Seq2[provisioning.Instance, error] {
	return provisioning.ListInstances(ctx, p.backend, stackSet, account)
}

// Targets returns the de-duplicated (account, region) pairs of stackSet.
func (p *Provisioner) Targets(ctx context.Context, stackSet string) (provisioning.TargetSet, error) {
	all, err := provisioning.Collect(p.List(ctx, stackSet, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to list stack instances of %s: %w", stackSet, err)
	}
	return provisioning.NewTargetSet(all), nil
}

// Exists reports whether stackSet has any instance in account. It stops
// reading after the first match.
func (p *Provisioner) Exists(ctx context.Context, stackSet, account string) (bool, error) {
	for _, err := range p.List(ctx, stackSet, account) {
		if err != nil {
			return false, fmt.Errorf("failed to list stack instances of %s for account %s: %w", stackSet, account, err)
		}
		return true, nil
	}
	return false, nil
}

// Create submits one operation deploying stackSet to every account in every
// region and returns the operation id.
func (p *Provisioner) Create(ctx context.Context, stackSet string, accounts, regions []string) (string, error) {
	if len(accounts) == 0 || len(regions) == 0 {
		return "", fmt.Errorf("cannot create stack instances of %s: %w", stackSet, ErrNoTargets)
	}

	opID, err := p.backend.CreateStackInstances(ctx, p.input(stackSet, accounts, regions, false))
	if err != nil {
		return "", fmt.Errorf("failed to create stack instances of %s: %w", stackSet, err)
	}

	logr.FromContextOrDiscard(ctx).Info("Submitted stack instance creation",
		"stackSet", stackSet, "operationID", opID, "accounts", accounts, "regions", regions)
	return opID, nil
}

// Delete submits one operation removing the instances covering targets.
// The request spans the distinct accounts and regions of targets, so it may
// also remove instances outside the set that share both an account and a
// region with it.
func (p *Provisioner) Delete(ctx context.Context, stackSet string, targets provisioning.TargetSet, retainStacks bool) (string, error) {
	if targets.Len() == 0 {
		return "", fmt.Errorf("cannot delete stack instances of %s: %w", stackSet, ErrNoTargets)
	}

	accounts, regions := targets.Accounts(), targets.Regions()
	opID, err := p.backend.DeleteStackInstances(ctx, p.input(stackSet, accounts, regions, retainStacks))
	if err != nil {
		return "", fmt.Errorf("failed to delete stack instances of %s: %w", stackSet, err)
	}

	logr.FromContextOrDiscard(ctx).Info("Submitted stack instance deletion",
		"stackSet", stackSet, "operationID", opID, "accounts", accounts, "regions", regions)
	return opID, nil
}

func (p *Provisioner) input(stackSet string, accounts, regions []string, retain bool) provisioning.InstancesInput {
	in := provisioning.InstancesInput{
		StackSet:     stackSet,
		Accounts:     accounts,
		Regions:      regions,
		RetainStacks: retain,
	}
	if !p.preferences.IsZero() {
		prefs := p.preferences
		in.Preferences = &prefs
	}
	return in
}
