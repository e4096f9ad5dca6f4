package provisioning

import (
	"context"
	"errors"
)

// Sentinel errors returned by Backend implementations.
var (
	// ErrNotFound means the StackSet or operation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists means a StackSet with the same name already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrOperationInProgress means CloudFormation rejected a mutation because
	// another operation is still running against the StackSet.
	ErrOperationInProgress = errors.New("operation in progress")
)

// Backend is the CloudFormation StackSet API used by the orchestration.
// Implemented by internal/platform/cloudformation.Client.
//
// List methods return a single page. An empty next token ends the listing.
type Backend interface {
	// DescribeStackSet returns the StackSet or an error wrapping ErrNotFound.
	DescribeStackSet(ctx context.Context, name string) (*StackSet, error)

	// CreateStackSet creates the StackSet and returns its id.
	CreateStackSet(ctx context.Context, spec StackSetSpec) (string, error)

	// DeleteStackSet deletes an empty StackSet.
	DeleteStackSet(ctx context.Context, name string) error

	// ListStackInstances returns one page of stack instances. A non-empty
	// account restricts the listing to that account.
	ListStackInstances(ctx context.Context, stackSet, account, nextToken string) ([]Instance, string, error)

	// CreateStackInstances starts an operation and returns its id.
	CreateStackInstances(ctx context.Context, in InstancesInput) (string, error)

	// DeleteStackInstances starts an operation and returns its id.
	DeleteStackInstances(ctx context.Context, in InstancesInput) (string, error)

	// ListStackSetOperations returns one page of operations.
	ListStackSetOperations(ctx context.Context, stackSet, nextToken string) ([]Operation, string, error)

	// DescribeStackSetOperation returns the current state of an operation.
	DescribeStackSetOperation(ctx context.Context, stackSet, operationID string) (*Operation, error)
}

// Publisher sends a Request to the provisioning topic.
// Implemented by internal/platform/sns.Publisher.
type Publisher interface {
	Publish(ctx context.Context, req Request) error
}
