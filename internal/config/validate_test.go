package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{
		StackSetName:        "baseline",
		TemplateURL:         "https://example.com/t.yaml",
		TopicARN:            "arn:aws:sns:us-east-1:1:topic",
		ManagementRegion:    "us-east-1",
		ManagementAccountID: "123",
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		mutate        func(*Config)
		registration  bool
		errorContains string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "valid registration", mutate: func(*Config) {}, registration: true},
		{name: "missing name", mutate: func(c *Config) { c.StackSetName = "" }, errorContains: "stack set name is required"},
		{name: "missing topic", mutate: func(c *Config) { c.TopicARN = "" }, errorContains: "sns topic arn is required"},
		{name: "missing stack region", mutate: func(c *Config) { c.StackRegion = "" }, errorContains: "stack region is required"},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, errorContains: "poll interval must be positive"},
		{name: "negative backoff", mutate: func(c *Config) { c.RequeueBackoff = -1 }, errorContains: "requeue backoff"},
		{
			name:          "percentage out of range",
			mutate:        func(c *Config) { c.OperationPreferences.MaxConcurrentPercentage = 101 },
			errorContains: "max concurrent percentage",
		},
		{
			name:          "failure tolerance out of range",
			mutate:        func(c *Config) { c.OperationPreferences.FailureTolerancePercentage = -5 },
			errorContains: "failure tolerance percentage",
		},
		{
			name:          "bad region concurrency",
			mutate:        func(c *Config) { c.OperationPreferences.RegionConcurrencyType = "RANDOM" },
			errorContains: "invalid region concurrency type",
		},
		{
			name:          "registration without template",
			mutate:        func(c *Config) { c.TemplateURL = "" },
			registration:  true,
			errorContains: "template url is required",
		},
		{
			name:          "registration without admin role",
			mutate:        func(c *Config) { c.AdministrationRoleARN = "" },
			registration:  true,
			errorContains: "administration role arn is required",
		},
		{
			name:          "registration with non-arn admin role",
			mutate:        func(c *Config) { c.AdministrationRoleARN = "AdminRole" },
			registration:  true,
			errorContains: "is not an ARN",
		},
		{
			name: "seed accounts without regions",
			mutate: func(c *Config) {
				c.SeedAccounts = "111"
				c.SeedRegions = nil
			},
			registration:  true,
			errorContains: "seed accounts require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)

			var err error
			if tt.registration {
				err = cfg.ValidateRegistration()
			} else {
				err = cfg.Validate()
			}

			if tt.errorContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestValidateTeardown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no topic needed", mutate: func(c *Config) { c.TopicARN = "" }},
		{name: "no template needed", mutate: func(c *Config) { c.TemplateURL = "" }},
		{name: "missing name", mutate: func(c *Config) { c.StackSetName = "" }, errorContains: "stack set name is required"},
		{name: "missing region", mutate: func(c *Config) { c.ManagementRegion = "" }, errorContains: "management region is required"},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, errorContains: "poll interval must be positive"},
		{
			name:          "bad region concurrency",
			mutate:        func(c *Config) { c.OperationPreferences.RegionConcurrencyType = "RANDOM" },
			errorContains: "invalid region concurrency type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.ValidateTeardown()
			if tt.errorContains == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}
