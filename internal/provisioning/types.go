package provisioning

import (
	"cmp"
	"slices"
	"time"
)

// OperationStatus is the lifecycle status of a StackSet operation.
type OperationStatus string

// StackSet operation statuses.
const (
	OperationRunning   OperationStatus = "RUNNING"
	OperationStopping  OperationStatus = "STOPPING"
	OperationSucceeded OperationStatus = "SUCCEEDED"
	OperationFailed    OperationStatus = "FAILED"
	OperationStopped   OperationStatus = "STOPPED"
	// OperationQueued is reported for managed-execution StackSets while an
	// operation waits behind another one.
	OperationQueued OperationStatus = "QUEUED"
)

// InFlight reports whether an operation with this status still holds the
// StackSet, so a new mutating operation would be rejected.
func (s OperationStatus) InFlight() bool {
	switch s {
	case OperationRunning, OperationStopping, OperationQueued:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s OperationStatus) Terminal() bool {
	switch s {
	case OperationSucceeded, OperationFailed, OperationStopped:
		return true
	default:
		return false
	}
}

// StackSet is the managed template registration.
type StackSet struct {
	Name                  string
	ID                    string
	Status                string
	Description           string
	Parameters            map[string]string
	Capabilities          []string
	AdministrationRoleARN string
	ExecutionRoleName     string
}

// StackSetSpec holds everything needed to create a StackSet.
type StackSetSpec struct {
	Name                  string
	Description           string
	TemplateURL           string
	Parameters            map[string]string
	Capabilities          []string
	AdministrationRoleARN string
	ExecutionRoleName     string
}

// Instance is a stack instance: the StackSet applied to one account and region.
type Instance struct {
	Account      string
	Region       string
	Status       string
	StatusReason string
}

// Operation is an asynchronous StackSet operation.
type Operation struct {
	ID        string
	Action    string
	Status    OperationStatus
	CreatedAt time.Time
}

// OperationPreferences tune how CloudFormation rolls an operation out.
// Zero values leave the CloudFormation defaults in place.
type OperationPreferences struct {
	MaxConcurrentPercentage    int32  `yaml:"maxConcurrentPercentage"`
	FailureTolerancePercentage int32  `yaml:"failureTolerancePercentage"`
	RegionConcurrencyType      string `yaml:"regionConcurrencyType"`
}

// IsZero reports whether no preference is set.
func (p OperationPreferences) IsZero() bool {
	return p == OperationPreferences{}
}

// InstancesInput describes a create or delete of stack instances.
type InstancesInput struct {
	StackSet     string
	Accounts     []string
	Regions      []string
	Preferences  *OperationPreferences
	RetainStacks bool
}

// Target is a single (account, region) pair.
type Target struct {
	Account string
	Region  string
}

// TargetSet is a de-duplicated set of targets. Membership is all that
// matters; order is never significant.
type TargetSet map[Target]struct{}

// NewTargetSet builds a TargetSet from instance summaries, dropping repeats.
func NewTargetSet(instances []Instance) TargetSet {
	set := make(TargetSet, len(instances))
	for _, inst := range instances {
		set.Add(inst.Account, inst.Region)
	}
	return set
}

// Add inserts a target.
func (s TargetSet) Add(account, region string) {
	s[Target{Account: account, Region: region}] = struct{}{}
}

// Has reports whether the target is in the set.
func (s TargetSet) Has(account, region string) bool {
	_, ok := s[Target{Account: account, Region: region}]
	return ok
}

// Len returns the number of distinct targets.
func (s TargetSet) Len() int {
	return len(s)
}

// Accounts returns the distinct account ids, sorted.
func (s TargetSet) Accounts() []string {
	return s.distinct(func(t Target) string { return t.Account })
}

// Regions returns the distinct regions, sorted.
func (s TargetSet) Regions() []string {
	return s.distinct(func(t Target) string { return t.Region })
}

// Targets returns the targets sorted by account, then region.
func (s TargetSet) Targets() []Target {
	out := make([]Target, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Target) int {
		if c := cmp.Compare(a.Account, b.Account); c != 0 {
			return c
		}
		return cmp.Compare(a.Region, b.Region)
	})
	return out
}

func (s TargetSet) distinct(key func(Target) string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for t := range s {
		k := key(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
