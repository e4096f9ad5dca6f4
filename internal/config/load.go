package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvStackSetName          = "STACK_SET_NAME"
	EnvTemplateURL           = "STACK_SET_URL"
	EnvDescription           = "STACK_SET_DESCRIPTION"
	EnvTemplateParameters    = "TEMPLATE_PARAMETERS"
	EnvOrganizationToken     = "ORGANIZATION_TOKEN"
	EnvCapabilities          = "CAPABILITIES"
	EnvAdministrationRoleARN = "ADMINISTRATION_ROLE_ARN"
	EnvExecutionRoleName     = "EXECUTION_ROLE_NAME"
	EnvTopicARN              = "STACK_SNS"
	EnvSeedAccounts          = "SEED_ACCOUNTS"
	EnvSeedRegions           = "SEED_REGIONS"
	EnvStackRegion           = "STACK_REGION"
	EnvRegion                = "AWS_REGION"
	EnvManagementAccountID   = "MANAGEMENT_ACCOUNT_ID"
	EnvPollInterval          = "POLL_INTERVAL"
	EnvRequeueBackoff        = "REQUEUE_BACKOFF"
	EnvMaxConcurrent         = "MAX_CONCURRENT_PERCENTAGE"
	EnvFailureTolerance      = "FAILURE_TOLERANCE_PERCENTAGE"
	EnvRegionConcurrency     = "REGION_CONCURRENCY_TYPE"
	EnvPushgatewayURL        = "PUSHGATEWAY_URL"
	EnvDebug                 = "DEBUG"
)

// organizationTokenParameter is the template parameter fed by ORGANIZATION_TOKEN.
const organizationTokenParameter = "OrganizationToken"

// FromEnv builds a Config from environment variables read through getenv.
// Unparseable values are reported together; defaults are applied to
// everything left empty.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	cfg := Config{
		StackSetName:          getenv(EnvStackSetName),
		TemplateURL:           getenv(EnvTemplateURL),
		Description:           getenv(EnvDescription),
		Capabilities:          SplitList(getenv(EnvCapabilities)),
		AdministrationRoleARN: getenv(EnvAdministrationRoleARN),
		ExecutionRoleName:     getenv(EnvExecutionRoleName),
		TopicARN:              getenv(EnvTopicARN),
		SeedAccounts:          getenv(EnvSeedAccounts),
		SeedRegions:           SplitList(getenv(EnvSeedRegions)),
		StackRegion:           getenv(EnvStackRegion),
		ManagementRegion:      getenv(EnvRegion),
		ManagementAccountID:   getenv(EnvManagementAccountID),
		PushgatewayURL:        getenv(EnvPushgatewayURL),
		Debug:                 getenv(EnvDebug) == "true",
	}

	if raw := getenv(EnvTemplateParameters); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Parameters); err != nil {
			errs = append(errs, fmt.Errorf("%s must be a JSON object of strings: %w", EnvTemplateParameters, err))
		}
	}
	if token := getenv(EnvOrganizationToken); token != "" {
		if cfg.Parameters == nil {
			cfg.Parameters = make(map[string]string)
		}
		if _, set := cfg.Parameters[organizationTokenParameter]; !set {
			cfg.Parameters[organizationTokenParameter] = token
		}
	}

	cfg.PollInterval = parseDuration(getenv, EnvPollInterval, &errs)
	cfg.RequeueBackoff = parseDuration(getenv, EnvRequeueBackoff, &errs)
	cfg.OperationPreferences.MaxConcurrentPercentage = parsePercentage(getenv, EnvMaxConcurrent, &errs)
	cfg.OperationPreferences.FailureTolerancePercentage = parsePercentage(getenv, EnvFailureTolerance, &errs)
	cfg.OperationPreferences.RegionConcurrencyType = getenv(EnvRegionConcurrency)

	cfg.applyDefaults()

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return cfg, nil
}

// LoadEnv is FromEnv over the process environment.
func LoadEnv() (Config, error) {
	return FromEnv(os.Getenv)
}

// LoadFile reads a YAML config file on top of the environment: keys present
// in the file win, everything else comes from getenv.
func LoadFile(path string, getenv func(string) string) (Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := FromEnv(getenv)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// parseDuration parses a duration from an environment variable. Unset
// variables yield zero so the default applies.
func parseDuration(getenv func(string) string, envVar string, errs *[]error) time.Duration {
	val := getenv(envVar)
	if val == "" {
		return 0
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", envVar, err))
		return 0
	}
	return d
}

// parsePercentage parses an integer from an environment variable.
func parsePercentage(getenv func(string) string, envVar string, errs *[]error) int32 {
	val := getenv(envVar)
	if val == "" {
		return 0
	}

	i, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", envVar, err))
		return 0
	}
	return int32(i)
}
