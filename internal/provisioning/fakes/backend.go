// Package fakes provides in-memory stand-ins for the CloudFormation and SNS
// collaborators used by the provisioning packages.
package fakes

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// Backend simulates the CloudFormation StackSet API. It keeps StackSets,
// instances, and operations in memory and records every call by name.
//
// Any XxxFunc field, when set, replaces the in-memory behaviour of that call.
type Backend struct {
	mu sync.Mutex

	StackSets  map[string]*provisioning.StackSet
	Instances  map[string][]provisioning.Instance
	Operations map[string][]provisioning.Operation

	// PageSize limits list responses; zero returns everything in one page.
	PageSize int

	// OperationStatus is the status given to operations created by
	// CreateStackInstances and DeleteStackInstances. Defaults to SUCCEEDED.
	OperationStatus provisioning.OperationStatus

	// StatusSequence is consumed by DescribeStackSetOperation, one status per
	// call. Once empty, the stored operation status is returned.
	StatusSequence []provisioning.OperationStatus

	DescribeStackSetFunc          func(ctx context.Context, name string) (*provisioning.StackSet, error)
	CreateStackSetFunc            func(ctx context.Context, spec provisioning.StackSetSpec) (string, error)
	DeleteStackSetFunc            func(ctx context.Context, name string) error
	ListStackInstancesFunc        func(ctx context.Context, stackSet, account, nextToken string) ([]provisioning.Instance, string, error)
	CreateStackInstancesFunc      func(ctx context.Context, in provisioning.InstancesInput) (string, error)
	DeleteStackInstancesFunc      func(ctx context.Context, in provisioning.InstancesInput) (string, error)
	ListStackSetOperationsFunc    func(ctx context.Context, stackSet, nextToken string) ([]provisioning.Operation, string, error)
	DescribeStackSetOperationFunc func(ctx context.Context, stackSet, operationID string) (*provisioning.Operation, error)

	Calls          []string
	CreatedSpecs   []provisioning.StackSetSpec
	CreateRequests []provisioning.InstancesInput
	DeleteRequests []provisioning.InstancesInput

	nextID int
}

// Ensure interface compliance
var _ provisioning.Backend = (*Backend)(nil)

// NewBackend returns an empty Backend.
func NewBackend() *Backend {
	return &Backend{
		StackSets:  make(map[string]*provisioning.StackSet),
		Instances:  make(map[string][]provisioning.Instance),
		Operations: make(map[string][]provisioning.Operation),
	}
}

// AddStackSet registers an existing StackSet.
func (b *Backend) AddStackSet(name string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StackSets[name] = &provisioning.StackSet{Name: name, ID: name + ":1", Status: "ACTIVE"}
	return b
}

// AddInstances registers existing stack instances.
func (b *Backend) AddInstances(stackSet string, instances ...provisioning.Instance) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Instances[stackSet] = append(b.Instances[stackSet], instances...)
	return b
}

// AddOperation registers an existing operation.
func (b *Backend) AddOperation(stackSet string, op provisioning.Operation) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Operations[stackSet] = append(b.Operations[stackSet], op)
	return b
}

// CallCount returns how often the named call was made.
func (b *Backend) CallCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *Backend) record(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, name)
}

// DescribeStackSet returns the stored StackSet or ErrNotFound.
func (b *Backend) DescribeStackSet(ctx context.Context, name string) (*provisioning.StackSet, error) {
	b.record("DescribeStackSet")
	if b.DescribeStackSetFunc != nil {
		return b.DescribeStackSetFunc(ctx, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ss, ok := b.StackSets[name]
	if !ok {
		return nil, fmt.Errorf("stack set %s: %w", name, provisioning.ErrNotFound)
	}
	cp := *ss
	return &cp, nil
}

// CreateStackSet stores a new StackSet or fails with ErrAlreadyExists.
func (b *Backend) CreateStackSet(ctx context.Context, spec provisioning.StackSetSpec) (string, error) {
	b.record("CreateStackSet")
	b.mu.Lock()
	b.CreatedSpecs = append(b.CreatedSpecs, spec)
	b.mu.Unlock()
	if b.CreateStackSetFunc != nil {
		return b.CreateStackSetFunc(ctx, spec)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.StackSets[spec.Name]; ok {
		return "", fmt.Errorf("stack set %s: %w", spec.Name, provisioning.ErrAlreadyExists)
	}
	ss := &provisioning.StackSet{
		Name:                  spec.Name,
		ID:                    spec.Name + ":" + b.newID(),
		Status:                "ACTIVE",
		Description:           spec.Description,
		Parameters:            maps.Clone(spec.Parameters),
		Capabilities:          slices.Clone(spec.Capabilities),
		AdministrationRoleARN: spec.AdministrationRoleARN,
		ExecutionRoleName:     spec.ExecutionRoleName,
	}
	b.StackSets[spec.Name] = ss
	return ss.ID, nil
}

// DeleteStackSet removes a StackSet.
func (b *Backend) DeleteStackSet(ctx context.Context, name string) error {
	b.record("DeleteStackSet")
	if b.DeleteStackSetFunc != nil {
		return b.DeleteStackSetFunc(ctx, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.StackSets[name]; !ok {
		return fmt.Errorf("stack set %s: %w", name, provisioning.ErrNotFound)
	}
	if len(b.Instances[name]) > 0 {
		return fmt.Errorf("stack set %s still has %d instances", name, len(b.Instances[name]))
	}
	delete(b.StackSets, name)
	return nil
}

// ListStackInstances pages through stored instances.
func (b *Backend) ListStackInstances(ctx context.Context, stackSet, account, nextToken string) ([]provisioning.Instance, string, error) {
	b.record("ListStackInstances")
	if b.ListStackInstancesFunc != nil {
		return b.ListStackInstancesFunc(ctx, stackSet, account, nextToken)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []provisioning.Instance
	for _, inst := range b.Instances[stackSet] {
		if account == "" || inst.Account == account {
			matched = append(matched, inst)
		}
	}
	return page(matched, b.PageSize, nextToken)
}

// CreateStackInstances stores instances for every account/region pair and
// records a finished operation.
func (b *Backend) CreateStackInstances(ctx context.Context, in provisioning.InstancesInput) (string, error) {
	b.record("CreateStackInstances")
	b.mu.Lock()
	b.CreateRequests = append(b.CreateRequests, in)
	b.mu.Unlock()
	if b.CreateStackInstancesFunc != nil {
		return b.CreateStackInstancesFunc(ctx, in)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, account := range in.Accounts {
		for _, region := range in.Regions {
			b.Instances[in.StackSet] = append(b.Instances[in.StackSet], provisioning.Instance{
				Account: account, Region: region, Status: "CURRENT",
			})
		}
	}
	return b.addOperation(in.StackSet, "CREATE"), nil
}

// DeleteStackInstances removes the matching instances and records an operation.
func (b *Backend) DeleteStackInstances(ctx context.Context, in provisioning.InstancesInput) (string, error) {
	b.record("DeleteStackInstances")
	b.mu.Lock()
	b.DeleteRequests = append(b.DeleteRequests, in)
	b.mu.Unlock()
	if b.DeleteStackInstancesFunc != nil {
		return b.DeleteStackInstancesFunc(ctx, in)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.Instances[in.StackSet][:0]
	for _, inst := range b.Instances[in.StackSet] {
		if slices.Contains(in.Accounts, inst.Account) && slices.Contains(in.Regions, inst.Region) {
			continue
		}
		kept = append(kept, inst)
	}
	b.Instances[in.StackSet] = kept
	return b.addOperation(in.StackSet, "DELETE"), nil
}

// ListStackSetOperations pages through stored operations.
func (b *Backend) ListStackSetOperations(ctx context.Context, stackSet, nextToken string) ([]provisioning.Operation, string, error) {
	b.record("ListStackSetOperations")
	if b.ListStackSetOperationsFunc != nil {
		return b.ListStackSetOperationsFunc(ctx, stackSet, nextToken)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return page(b.Operations[stackSet], b.PageSize, nextToken)
}

// DescribeStackSetOperation returns the next queued status or the stored one.
func (b *Backend) DescribeStackSetOperation(ctx context.Context, stackSet, operationID string) (*provisioning.Operation, error) {
	b.record("DescribeStackSetOperation")
	if b.DescribeStackSetOperationFunc != nil {
		return b.DescribeStackSetOperationFunc(ctx, stackSet, operationID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, op := range b.Operations[stackSet] {
		if op.ID != operationID {
			continue
		}
		if len(b.StatusSequence) > 0 {
			b.Operations[stackSet][i].Status = b.StatusSequence[0]
			b.StatusSequence = b.StatusSequence[1:]
		}
		cp := b.Operations[stackSet][i]
		return &cp, nil
	}
	return nil, fmt.Errorf("operation %s: %w", operationID, provisioning.ErrNotFound)
}

// addOperation must be called with mu held.
func (b *Backend) addOperation(stackSet, action string) string {
	status := b.OperationStatus
	if status == "" {
		status = provisioning.OperationSucceeded
	}
	id := "op-" + b.newID()
	b.Operations[stackSet] = append(b.Operations[stackSet], provisioning.Operation{
		ID: id, Action: action, Status: status, CreatedAt: time.Now(),
	})
	return id
}

// newID must be called with mu held.
func (b *Backend) newID() string {
	b.nextID++
	return strconv.Itoa(b.nextID)
}

func page[T any](items []T, size int, token string) ([]T, string, error) {
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 || n > len(items) {
			return nil, "", fmt.Errorf("invalid next token %q", token)
		}
		start = n
	}
	if size <= 0 || start+size >= len(items) {
		return slices.Clone(items[start:]), "", nil
	}
	end := start + size
	return slices.Clone(items[start:end]), strconv.Itoa(end), nil
}
