package provisioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidRequest is returned when a Request payload cannot be used.
var ErrInvalidRequest = errors.New("invalid provisioning request")

// Targets are the accounts and regions a StackSet should be deployed to.
type Targets struct {
	Accounts []string `json:"targetAccounts"`
	Regions  []string `json:"targetRegions"`
}

// Request maps StackSet names to the targets that need stack instances.
//
// Its JSON form is the SNS message body:
//
//	{"my-stack-set":{"targetAccounts":["111","222"],"targetRegions":["us-east-1"]}}
type Request map[string]Targets

// NewRequest builds a single-StackSet request.
func NewRequest(stackSet string, accounts, regions []string) Request {
	return Request{stackSet: {Accounts: accounts, Regions: regions}}
}

// ParseRequest decodes and validates an SNS message body.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks that every entry names a StackSet and carries at least
// one account and one region.
func (r Request) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: no stack sets", ErrInvalidRequest)
	}
	for name, t := range r {
		if name == "" {
			return fmt.Errorf("%w: empty stack set name", ErrInvalidRequest)
		}
		if len(t.Accounts) == 0 {
			return fmt.Errorf("%w: stack set %s has no target accounts", ErrInvalidRequest, name)
		}
		if len(t.Regions) == 0 {
			return fmt.Errorf("%w: stack set %s has no target regions", ErrInvalidRequest, name)
		}
	}
	return nil
}

// Names returns the StackSet names in the request, sorted.
func (r Request) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Marshal encodes the request as an SNS message body.
func (r Request) Marshal() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode provisioning request: %w", err)
	}
	return string(data), nil
}
