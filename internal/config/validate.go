package config

import (
	"fmt"
	"strings"
)

// validRegionConcurrency lists the accepted RegionConcurrencyType values.
var validRegionConcurrency = map[string]bool{
	"":           true,
	"SEQUENTIAL": true,
	"PARALLEL":   true,
}

// Validate checks the fields every function needs.
func (c Config) Validate() error {
	if c.StackSetName == "" {
		return fmt.Errorf("%w: stack set name is required", ErrInvalid)
	}
	if c.TopicARN == "" {
		return fmt.Errorf("%w: sns topic arn is required", ErrInvalid)
	}
	if c.StackRegion == "" {
		return fmt.Errorf("%w: stack region is required", ErrInvalid)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalid, c.PollInterval)
	}
	if c.RequeueBackoff < 0 {
		return fmt.Errorf("%w: requeue backoff must not be negative, got %s", ErrInvalid, c.RequeueBackoff)
	}

	if err := c.validateOperationPreferences(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// ValidateRegistration additionally checks what is needed to create the StackSet.
func (c Config) ValidateRegistration() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TemplateURL == "" {
		return fmt.Errorf("%w: template url is required", ErrInvalid)
	}
	if c.AdministrationRoleARN == "" {
		return fmt.Errorf("%w: administration role arn is required (or a management account id to derive it)", ErrInvalid)
	}
	if !strings.HasPrefix(c.AdministrationRoleARN, "arn:") {
		return fmt.Errorf("%w: administration role %q is not an ARN", ErrInvalid, c.AdministrationRoleARN)
	}
	if len(c.SeedAccountList()) > 0 && len(c.SeedRegions) == 0 {
		return fmt.Errorf("%w: seed accounts require at least one seed region", ErrInvalid)
	}
	return nil
}

// ValidateTeardown checks what Teardown needs. Teardown never publishes, so
// no topic is required.
func (c Config) ValidateTeardown() error {
	if c.StackSetName == "" {
		return fmt.Errorf("%w: stack set name is required", ErrInvalid)
	}
	if c.ManagementRegion == "" {
		return fmt.Errorf("%w: management region is required", ErrInvalid)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalid, c.PollInterval)
	}
	if err := c.validateOperationPreferences(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c Config) validateOperationPreferences() error {
	p := c.OperationPreferences
	if p.MaxConcurrentPercentage < 0 || p.MaxConcurrentPercentage > 100 {
		return fmt.Errorf("max concurrent percentage must be between 0 and 100, got %d", p.MaxConcurrentPercentage)
	}
	if p.FailureTolerancePercentage < 0 || p.FailureTolerancePercentage > 100 {
		return fmt.Errorf("failure tolerance percentage must be between 0 and 100, got %d", p.FailureTolerancePercentage)
	}
	if !validRegionConcurrency[p.RegionConcurrencyType] {
		return fmt.Errorf("invalid region concurrency type %q: must be SEQUENTIAL or PARALLEL", p.RegionConcurrencyType)
	}
	return nil
}
