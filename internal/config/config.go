package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Defaults applied when a value is not configured.
const (
	DefaultDescription       = "Management account stack set orchestrating the setup of enrolled accounts"
	DefaultCapability        = "CAPABILITY_NAMED_IAM"
	DefaultExecutionRoleName = "AWSControlTowerExecution"
	DefaultPollInterval      = 30 * time.Second
	DefaultRequeueBackoff    = 20 * time.Second

	// administrationRolePath is appended to the management account to build
	// the default StackSet administration role.
	administrationRolePath = "role/service-role/AWSControlTowerStackSetRole"
)

// Config holds everything an invocation needs.
type Config struct {
	// StackSetName is the managed StackSet. Required.
	StackSetName string `yaml:"stackSetName"`

	// Template registration
	TemplateURL           string            `yaml:"templateURL"`
	Description           string            `yaml:"description"`
	Parameters            map[string]string `yaml:"parameters"`
	Capabilities          []string          `yaml:"capabilities"`
	AdministrationRoleARN string            `yaml:"administrationRoleARN"`
	ExecutionRoleName     string            `yaml:"executionRoleName"`

	// TopicARN is the SNS topic used for seeding and requeues. Required.
	TopicARN string `yaml:"topicARN"`

	// SeedAccounts is a comma-separated account list provisioned when the
	// StackSet is first created.
	SeedAccounts string   `yaml:"seedAccounts"`
	SeedRegions  []string `yaml:"seedRegions"`

	// StackRegion is the region used for accounts onboarded by lifecycle events.
	StackRegion string `yaml:"stackRegion"`

	// Management account, normally derived from the invoked function ARN.
	ManagementRegion    string `yaml:"managementRegion"`
	ManagementAccountID string `yaml:"managementAccountID"`

	PollInterval   time.Duration `yaml:"pollInterval"`
	RequeueBackoff time.Duration `yaml:"requeueBackoff"`

	OperationPreferences provisioning.OperationPreferences `yaml:"operationPreferences"`

	PushgatewayURL string `yaml:"pushgatewayURL"`
	Debug          bool   `yaml:"debug"`
}

// ApplyFunctionARN fills the management region and account from a Lambda
// function ARN (arn:aws:lambda:<region>:<account>:function:<name>) unless
// they are already set, then re-applies defaults that depend on them.
func (c *Config) ApplyFunctionARN(arn string) {
	var region, account string
	if parts := strings.Split(arn, ":"); len(parts) >= 5 && parts[0] == "arn" {
		region, account = parts[3], parts[4]
	}
	c.SetManagement(region, account)
}

// SetManagement fills the management region and account unless they are
// already set, then re-applies defaults that depend on them.
func (c *Config) SetManagement(region, account string) {
	if c.ManagementRegion == "" {
		c.ManagementRegion = region
	}
	if c.ManagementAccountID == "" {
		c.ManagementAccountID = account
	}
	c.applyDefaults()
}

// SeedAccountList returns SeedAccounts split into account ids.
func (c Config) SeedAccountList() []string {
	return SplitList(c.SeedAccounts)
}

// StackSetSpec returns the create input for the managed StackSet.
func (c Config) StackSetSpec() provisioning.StackSetSpec {
	return provisioning.StackSetSpec{
		Name:                  c.StackSetName,
		Description:           c.Description,
		TemplateURL:           c.TemplateURL,
		Parameters:            c.Parameters,
		Capabilities:          c.Capabilities,
		AdministrationRoleARN: c.AdministrationRoleARN,
		ExecutionRoleName:     c.ExecutionRoleName,
	}
}

// applyDefaults only fills empty fields, so it is safe to call repeatedly.
func (c *Config) applyDefaults() {
	if c.Description == "" {
		c.Description = DefaultDescription
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = []string{DefaultCapability}
	}
	if c.ExecutionRoleName == "" {
		c.ExecutionRoleName = DefaultExecutionRoleName
	}
	if c.AdministrationRoleARN == "" && c.ManagementAccountID != "" {
		c.AdministrationRoleARN = fmt.Sprintf("arn:aws:iam::%s:%s", c.ManagementAccountID, administrationRolePath)
	}
	if len(c.SeedRegions) == 0 && c.ManagementRegion != "" {
		c.SeedRegions = []string{c.ManagementRegion}
	}
	if c.StackRegion == "" {
		c.StackRegion = c.ManagementRegion
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequeueBackoff == 0 {
		c.RequeueBackoff = DefaultRequeueBackoff
	}
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
