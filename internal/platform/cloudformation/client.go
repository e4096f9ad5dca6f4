// Package cloudformation implements provisioning.Backend on the AWS
// CloudFormation StackSet API.
package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// API is the subset of the CloudFormation client used here.
// *cloudformation.Client satisfies it.
type API interface {
	DescribeStackSet(ctx context.Context, in *cloudformation.DescribeStackSetInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStackSetOutput, error)
	CreateStackSet(ctx context.Context, in *cloudformation.CreateStackSetInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackSetOutput, error)
	DeleteStackSet(ctx context.Context, in *cloudformation.DeleteStackSetInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackSetOutput, error)
	ListStackInstances(ctx context.Context, in *cloudformation.ListStackInstancesInput, opts ...func(*cloudformation.Options)) (*cloudformation.ListStackInstancesOutput, error)
	CreateStackInstances(ctx context.Context, in *cloudformation.CreateStackInstancesInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackInstancesOutput, error)
	DeleteStackInstances(ctx context.Context, in *cloudformation.DeleteStackInstancesInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackInstancesOutput, error)
	ListStackSetOperations(ctx context.Context, in *cloudformation.ListStackSetOperationsInput, opts ...func(*cloudformation.Options)) (*cloudformation.ListStackSetOperationsOutput, error)
	DescribeStackSetOperation(ctx context.Context, in *cloudformation.DescribeStackSetOperationInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStackSetOperationOutput, error)
}

// Client wraps the CloudFormation API for StackSet orchestration.
type Client struct {
	api API
}

// Ensure interface compliance
var _ provisioning.Backend = (*Client)(nil)

// New wraps an existing API implementation.
func New(api API) *Client {
	return &Client{api: api}
}

// NewFromConfig creates a Client from an AWS config.
func NewFromConfig(cfg aws.Config, optFns ...func(*cloudformation.Options)) *Client {
	return New(cloudformation.NewFromConfig(cfg, optFns...))
}

// observe records metrics for one API call. Use with defer and a named error.
func observe(operation string, start time.Time, err *error) {
	metrics.RecordCloudFormationCall(operation, *err, time.Since(start))
}

// DescribeStackSet returns the StackSet. A missing StackSet yields an error
// wrapping provisioning.ErrNotFound.
func (c *Client) DescribeStackSet(ctx context.Context, name string) (_ *provisioning.StackSet, err error) {
	defer observe("DescribeStackSet", time.Now(), &err)

	out, err := c.api.DescribeStackSet(ctx, &cloudformation.DescribeStackSetInput{
		StackSetName: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe stack set %s: %w", name, classify(err))
	}
	if out.StackSet == nil {
		return nil, fmt.Errorf("failed to describe stack set %s: %w", name, provisioning.ErrNotFound)
	}
	return toStackSet(out.StackSet), nil
}

// CreateStackSet creates the StackSet. If the name is taken the error wraps
// provisioning.ErrAlreadyExists.
func (c *Client) CreateStackSet(ctx context.Context, spec provisioning.StackSetSpec) (_ string, err error) {
	defer observe("CreateStackSet", time.Now(), &err)

	input := &cloudformation.CreateStackSetInput{
		StackSetName: aws.String(spec.Name),
		TemplateURL:  aws.String(spec.TemplateURL),
		Parameters:   toParameters(spec.Parameters),
		Capabilities: toCapabilities(spec.Capabilities),
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}
	if spec.AdministrationRoleARN != "" {
		input.AdministrationRoleARN = aws.String(spec.AdministrationRoleARN)
	}
	if spec.ExecutionRoleName != "" {
		input.ExecutionRoleName = aws.String(spec.ExecutionRoleName)
	}

	out, err := c.api.CreateStackSet(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create stack set %s: %w", spec.Name, classify(err))
	}
	return aws.ToString(out.StackSetId), nil
}

// DeleteStackSet deletes the StackSet. It must have no instances left.
func (c *Client) DeleteStackSet(ctx context.Context, name string) (err error) {
	defer observe("DeleteStackSet", time.Now(), &err)

	_, err = c.api.DeleteStackSet(ctx, &cloudformation.DeleteStackSetInput{
		StackSetName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack set %s: %w", name, classify(err))
	}
	return nil
}

// ListStackInstances returns one page of stack instances.
func (c *Client) ListStackInstances(ctx context.Context, stackSet, account, nextToken string) (_ []provisioning.Instance, _ string, err error) {
	defer observe("ListStackInstances", time.Now(), &err)

	input := &cloudformation.ListStackInstancesInput{
		StackSetName: aws.String(stackSet),
	}
	if account != "" {
		input.StackInstanceAccount = aws.String(account)
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := c.api.ListStackInstances(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list stack instances of %s: %w", stackSet, classify(err))
	}

	instances := make([]provisioning.Instance, 0, len(out.Summaries))
	for _, s := range out.Summaries {
		instances = append(instances, provisioning.Instance{
			Account:      aws.ToString(s.Account),
			Region:       aws.ToString(s.Region),
			Status:       string(s.Status),
			StatusReason: aws.ToString(s.StatusReason),
		})
	}
	return instances, aws.ToString(out.NextToken), nil
}

// CreateStackInstances starts a create operation and returns its id.
// A concurrent operation yields an error wrapping provisioning.ErrOperationInProgress.
func (c *Client) CreateStackInstances(ctx context.Context, in provisioning.InstancesInput) (_ string, err error) {
	defer observe("CreateStackInstances", time.Now(), &err)

	out, err := c.api.CreateStackInstances(ctx, &cloudformation.CreateStackInstancesInput{
		StackSetName:         aws.String(in.StackSet),
		Accounts:             in.Accounts,
		Regions:              in.Regions,
		OperationPreferences: toPreferences(in.Preferences),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create stack instances of %s: %w", in.StackSet, classify(err))
	}
	return aws.ToString(out.OperationId), nil
}

// DeleteStackInstances starts a delete operation and returns its id.
func (c *Client) DeleteStackInstances(ctx context.Context, in provisioning.InstancesInput) (_ string, err error) {
	defer observe("DeleteStackInstances", time.Now(), &err)

	out, err := c.api.DeleteStackInstances(ctx, &cloudformation.DeleteStackInstancesInput{
		StackSetName:         aws.String(in.StackSet),
		Accounts:             in.Accounts,
		Regions:              in.Regions,
		RetainStacks:         aws.Bool(in.RetainStacks),
		OperationPreferences: toPreferences(in.Preferences),
	})
	if err != nil {
		return "", fmt.Errorf("failed to delete stack instances of %s: %w", in.StackSet, classify(err))
	}
	return aws.ToString(out.OperationId), nil
}

// ListStackSetOperations returns one page of operations.
func (c *Client) ListStackSetOperations(ctx context.Context, stackSet, nextToken string) (_ []provisioning.Operation, _ string, err error) {
	defer observe("ListStackSetOperations", time.Now(), &err)

	input := &cloudformation.ListStackSetOperationsInput{
		StackSetName: aws.String(stackSet),
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := c.api.ListStackSetOperations(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list operations of %s: %w", stackSet, classify(err))
	}

	ops := make([]provisioning.Operation, 0, len(out.Summaries))
	for _, s := range out.Summaries {
		ops = append(ops, provisioning.Operation{
			ID:        aws.ToString(s.OperationId),
			Action:    string(s.Action),
			Status:    provisioning.OperationStatus(s.Status),
			CreatedAt: aws.ToTime(s.CreationTimestamp),
		})
	}
	return ops, aws.ToString(out.NextToken), nil
}

// DescribeStackSetOperation returns the current state of an operation.
func (c *Client) DescribeStackSetOperation(ctx context.Context, stackSet, operationID string) (_ *provisioning.Operation, err error) {
	defer observe("DescribeStackSetOperation", time.Now(), &err)

	out, err := c.api.DescribeStackSetOperation(ctx, &cloudformation.DescribeStackSetOperationInput{
		StackSetName: aws.String(stackSet),
		OperationId:  aws.String(operationID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe operation %s of %s: %w", operationID, stackSet, classify(err))
	}
	if out.StackSetOperation == nil {
		return nil, fmt.Errorf("failed to describe operation %s of %s: %w", operationID, stackSet, provisioning.ErrNotFound)
	}

	op := out.StackSetOperation
	return &provisioning.Operation{
		ID:        aws.ToString(op.OperationId),
		Action:    string(op.Action),
		Status:    provisioning.OperationStatus(op.Status),
		CreatedAt: aws.ToTime(op.CreationTimestamp),
	}, nil
}

func toStackSet(s *types.StackSet) *provisioning.StackSet {
	params := make(map[string]string, len(s.Parameters))
	for _, p := range s.Parameters {
		params[aws.ToString(p.ParameterKey)] = aws.ToString(p.ParameterValue)
	}
	caps := make([]string, 0, len(s.Capabilities))
	for _, c := range s.Capabilities {
		caps = append(caps, string(c))
	}
	return &provisioning.StackSet{
		Name:                  aws.ToString(s.StackSetName),
		ID:                    aws.ToString(s.StackSetId),
		Status:                string(s.Status),
		Description:           aws.ToString(s.Description),
		Parameters:            params,
		Capabilities:          caps,
		AdministrationRoleARN: aws.ToString(s.AdministrationRoleARN),
		ExecutionRoleName:     aws.ToString(s.ExecutionRoleName),
	}
}

// toParameters converts parameters in key order so requests are stable.
func toParameters(params map[string]string) []types.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.Parameter, 0, len(params))
	for _, key := range slices.Sorted(maps.Keys(params)) {
		out = append(out, types.Parameter{
			ParameterKey:     aws.String(key),
			ParameterValue:   aws.String(params[key]),
			UsePreviousValue: aws.Bool(false),
		})
	}
	return out
}

func toCapabilities(caps []string) []types.Capability {
	out := make([]types.Capability, 0, len(caps))
	for _, c := range caps {
		out = append(out, types.Capability(c))
	}
	return out
}

func toPreferences(p *provisioning.OperationPreferences) *types.StackSetOperationPreferences {
	if p == nil || p.IsZero() {
		return nil
	}
	prefs := &types.StackSetOperationPreferences{
		RegionConcurrencyType: types.RegionConcurrencyType(p.RegionConcurrencyType),
	}
	if p.MaxConcurrentPercentage > 0 {
		prefs.MaxConcurrentPercentage = aws.Int32(p.MaxConcurrentPercentage)
	}
	if p.FailureTolerancePercentage > 0 {
		prefs.FailureTolerancePercentage = aws.Int32(p.FailureTolerancePercentage)
	}
	return prefs
}

// classify wraps known CloudFormation errors with provisioning sentinels
// while keeping the original error in the chain.
func classify(err error) error {
	switch {
	case isNotFoundError(err):
		return fmt.Errorf("%w: %w", provisioning.ErrNotFound, err)
	case isAlreadyExistsError(err):
		return fmt.Errorf("%w: %w", provisioning.ErrAlreadyExists, err)
	case isOperationInProgressError(err):
		return fmt.Errorf("%w: %w", provisioning.ErrOperationInProgress, err)
	default:
		return err
	}
}

// isNotFoundError checks if the error is a not found error.
func isNotFoundError(err error) bool {
	var ssnf *types.StackSetNotFoundException
	if errors.As(err, &ssnf) {
		return true
	}

	var onf *types.OperationNotFoundException
	if errors.As(err, &onf) {
		return true
	}

	// Fall back to API error code checking
	return hasErrorCode(err, "StackSetNotFoundException", "OperationNotFoundException", "StackSetNotFound", "OperationNotFound")
}

// isAlreadyExistsError checks if the error indicates the StackSet name is taken.
func isAlreadyExistsError(err error) bool {
	var nae *types.NameAlreadyExistsException
	if errors.As(err, &nae) {
		return true
	}
	return hasErrorCode(err, "NameAlreadyExistsException", "AlreadyExistsException")
}

// isOperationInProgressError checks if another operation holds the StackSet.
func isOperationInProgressError(err error) bool {
	var oip *types.OperationInProgressException
	if errors.As(err, &oip) {
		return true
	}
	return hasErrorCode(err, "OperationInProgressException")
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return slices.Contains(codes, apiErr.ErrorCode())
	}
	return false
}
