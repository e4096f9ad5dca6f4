// Package lifecycle turns external triggers into provisioning requests.
//
// Two shapes are handled: the comma-separated seed list configured for a
// fresh install, and the Control Tower CreateManagedAccount lifecycle event
// delivered by EventBridge when a new account is enrolled.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// CreateManagedAccount is the lifecycle event name for account enrollment.
const CreateManagedAccount = "CreateManagedAccount"

// StateSucceeded is the enrollment state that triggers provisioning.
const StateSucceeded = "SUCCEEDED"

var (
	// ErrMalformedEvent is returned for events that are not account
	// enrollment events or lack an account id.
	ErrMalformedEvent = errors.New("malformed lifecycle event")
	// ErrUnexpectedState is returned when the enrollment did not succeed.
	ErrUnexpectedState = errors.New("unexpected lifecycle state")
)

// AccountEvent is the part of a CreateManagedAccount event that matters here.
type AccountEvent struct {
	EventName   string
	State       string
	AccountID   string
	AccountName string
}

// detail mirrors the EventBridge detail of a Control Tower lifecycle event.
type detail struct {
	EventName           string `json:"eventName"`
	ServiceEventDetails struct {
		CreateManagedAccountStatus struct {
			State   string `json:"state"`
			Account struct {
				AccountID   string `json:"accountId"`
				AccountName string `json:"accountName"`
			} `json:"account"`
		} `json:"createManagedAccountStatus"`
	} `json:"serviceEventDetails"`
}

// ParseEvent extracts the enrollment fields from an EventBridge event.
func ParseEvent(evt events.CloudWatchEvent) (AccountEvent, error) {
	var d detail
	if err := json.Unmarshal(evt.Detail, &d); err != nil {
		return AccountEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	status := d.ServiceEventDetails.CreateManagedAccountStatus
	return AccountEvent{
		EventName:   d.EventName,
		State:       status.State,
		AccountID:   status.Account.AccountID,
		AccountName: status.Account.AccountName,
	}, nil
}

// FromSeedBatch builds the request for the seed accounts given as a
// comma-separated list. It reports false when the list holds no account.
func FromSeedBatch(stackSet string, regions []string, accountCSV string) (provisioning.Request, bool) {
	accounts := config.SplitList(accountCSV)
	if len(accounts) == 0 || len(regions) == 0 {
		return nil, false
	}
	return provisioning.NewRequest(stackSet, accounts, regions), true
}

// ExistenceChecker reports whether a StackSet already has an instance in an
// account. Implemented by instances.Provisioner.
type ExistenceChecker interface {
	Exists(ctx context.Context, stackSet, account string) (bool, error)
}

// Adapter converts account enrollment events for one StackSet.
type Adapter struct {
	stackSet string
	region   string
	checker  ExistenceChecker
}

// NewAdapter returns an Adapter provisioning new accounts in region.
func NewAdapter(stackSet, region string, checker ExistenceChecker) *Adapter {
	return &Adapter{stackSet: stackSet, region: region, checker: checker}
}

// FromAccountEvent returns a single-account request for a successful
// enrollment. It reports false when the account already has an instance,
// so redelivered events are no-ops.
func (a *Adapter) FromAccountEvent(ctx context.Context, evt AccountEvent) (provisioning.Request, bool, error) {
	if evt.EventName != CreateManagedAccount {
		return nil, false, fmt.Errorf("%w: event %q", ErrMalformedEvent, evt.EventName)
	}
	if evt.State != StateSucceeded {
		return nil, false, fmt.Errorf("%w: got %q, expected %q", ErrUnexpectedState, evt.State, StateSucceeded)
	}
	if evt.AccountID == "" {
		return nil, false, fmt.Errorf("%w: missing account id", ErrMalformedEvent)
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("stackSet", a.stackSet, "account", evt.AccountID)

	exists, err := a.checker.Exists(ctx, a.stackSet, evt.AccountID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		log.Info("Stack instance already exists, skipping account")
		return nil, false, nil
	}

	log.Info("Provisioning enrolled account", "region", a.region, "accountName", evt.AccountName)
	return provisioning.NewRequest(a.stackSet, []string{evt.AccountID}, []string{a.region}), true, nil
}
