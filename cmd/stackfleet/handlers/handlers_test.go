package handlers

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/fakes"
)

type harness struct {
	cfg       config.Config
	backend   *fakes.Backend
	publisher *fakes.Publisher
	sleeps    *fakes.Sleeps
	out       *bytes.Buffer

	interactive bool
	confirmed   bool
	confirmErr  error
	prompts     int
	profile     string
}

// withFakes swaps every factory for an in-memory fake and restores the
// originals when the test ends. Tests using it must not run in parallel.
func withFakes(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		cfg: config.Config{
			StackSetName:        "baseline",
			TemplateURL:         "https://bucket.s3.amazonaws.com/baseline.yaml",
			TopicARN:            "arn:aws:sns:eu-west-1:999:stackfleet",
			ManagementRegion:    "eu-west-1",
			ManagementAccountID: "999",
		},
		backend:   fakes.NewBackend(),
		publisher: &fakes.Publisher{},
		sleeps:    &fakes.Sleeps{},
		out:       &bytes.Buffer{},
	}

	origLoad := loadConfig
	origClients := newClients
	origLogger := newLogger
	origInteractive := isInteractive
	origConfirm := confirm
	origSleeper := sleeper
	origOutput := output
	t.Cleanup(func() {
		loadConfig = origLoad
		newClients = origClients
		newLogger = origLogger
		isInteractive = origInteractive
		confirm = origConfirm
		sleeper = origSleeper
		output = origOutput
	})

	loadConfig = func(_ string) (config.Config, error) {
		return h.cfg, nil
	}
	newClients = func(_ context.Context, _ config.Config, profile string) (*Clients, error) {
		h.profile = profile
		return &Clients{Backend: h.backend, Publisher: h.publisher}, nil
	}
	newLogger = func(bool) (logr.Logger, error) { return testr.New(t), nil }
	isInteractive = func() bool { return h.interactive }
	confirm = func(context.Context, string, string) (bool, error) {
		h.prompts++
		return h.confirmed, h.confirmErr
	}
	sleeper = h.sleeps.Sleep
	output = h.out

	return h
}

func TestEnsure_CreatesAndSeeds(t *testing.T) {
	h := withFakes(t)
	h.cfg.SeedAccounts = "111,222"

	require.NoError(t, Ensure(context.Background(), Options{Profile: "mgmt"}))

	assert.Contains(t, h.backend.StackSets, "baseline")
	assert.Equal(t, "mgmt", h.profile)
	require.Len(t, h.publisher.Requests(), 1)
	assert.Equal(t, []string{"111", "222"}, h.publisher.Requests()[0]["baseline"].Accounts)
	assert.Contains(t, h.out.String(), "Stack set baseline created")
}

func TestEnsure_AlreadyExists(t *testing.T) {
	h := withFakes(t)
	h.backend.AddStackSet("baseline")

	require.NoError(t, Ensure(context.Background(), Options{}))

	assert.Equal(t, 0, h.backend.CallCount("CreateStackSet"))
	assert.Contains(t, h.out.String(), "Stack set baseline already exists")
}

func TestEnsure_InvalidConfig(t *testing.T) {
	h := withFakes(t)
	h.cfg.TemplateURL = ""

	err := Ensure(context.Background(), Options{})
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, 0, h.backend.CallCount("DescribeStackSet"))
}

func TestEnsure_LoadConfigError(t *testing.T) {
	withFakes(t)
	loadConfig = func(string) (config.Config, error) { return config.Config{}, errors.New("no such file") }

	err := Ensure(context.Background(), Options{ConfigPath: "missing.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

func TestSetup_RegionFlag(t *testing.T) {
	h := withFakes(t)
	h.cfg.StackRegion = "eu-west-1"

	_, cfg, _, err := setup(context.Background(), Options{Region: "us-east-1"}, config.Config.Validate)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.ManagementRegion)
	assert.Equal(t, "us-east-1", cfg.StackRegion)
}

func TestTeardown(t *testing.T) {
	tests := []struct {
		name        string
		assumeYes   bool
		interactive bool
		confirmed   bool
		confirmErr  error
		wantErr     error
		wantErrText string
		wantPrompts int
		wantDeleted bool
	}{
		{name: "assume yes", assumeYes: true, wantDeleted: true},
		{name: "confirmed", interactive: true, confirmed: true, wantPrompts: 1, wantDeleted: true},
		{name: "declined", interactive: true, wantPrompts: 1, wantErr: ErrAborted},
		{name: "prompt canceled", interactive: true, confirmErr: errors.New("confirmation canceled"), wantPrompts: 1, wantErrText: "confirmation canceled"},
		{name: "non-interactive without yes", wantErrText: "--yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withFakes(t)
			h.interactive = tt.interactive
			h.confirmed = tt.confirmed
			h.confirmErr = tt.confirmErr
			h.backend.AddStackSet("baseline").AddInstances("baseline",
				provisioning.Instance{Account: "111", Region: "eu-west-1"},
				provisioning.Instance{Account: "222", Region: "eu-west-1"},
			)

			err := Teardown(context.Background(), Options{}, time.Minute, tt.assumeYes)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
			default:
				require.NoError(t, err)
				assert.Contains(t, h.out.String(), "Teardown of baseline finished")
			}
			assert.Equal(t, tt.wantPrompts, h.prompts)

			_, exists := h.backend.StackSets["baseline"]
			assert.Equal(t, !tt.wantDeleted, exists)
			if tt.wantDeleted {
				assert.Equal(t, 1, h.backend.CallCount("DeleteStackInstances"))
				assert.Empty(t, h.backend.Instances["baseline"])
			} else {
				assert.Equal(t, 0, h.backend.CallCount("DeleteStackInstances"))
			}
		})
	}
}

func TestTeardown_WithoutTopic(t *testing.T) {
	h := withFakes(t)
	h.cfg.TopicARN = ""
	h.backend.AddStackSet("baseline")

	require.NoError(t, Teardown(context.Background(), Options{}, time.Minute, true))
	assert.NotContains(t, h.backend.StackSets, "baseline")
	assert.Empty(t, h.publisher.Requests())
}

func TestSubmit_Dispatches(t *testing.T) {
	h := withFakes(t)
	h.backend.AddStackSet("baseline")

	err := Submit(context.Background(), Options{}, []string{"111", "222"}, nil, false)
	require.NoError(t, err)

	require.Len(t, h.backend.CreateRequests, 1)
	assert.Equal(t, []string{"111", "222"}, h.backend.CreateRequests[0].Accounts)
	assert.Equal(t, []string{"eu-west-1"}, h.backend.CreateRequests[0].Regions)
	assert.Empty(t, h.publisher.Requests())
	assert.Contains(t, h.out.String(), "Request for baseline created")
}

func TestSubmit_RequeuesWhenBusy(t *testing.T) {
	h := withFakes(t)
	h.cfg.RequeueBackoff = 5 * time.Second
	h.backend.AddStackSet("baseline").AddOperation("baseline", provisioning.Operation{
		ID: "op-busy", Action: "CREATE", Status: provisioning.OperationRunning,
	})

	err := Submit(context.Background(), Options{}, []string{"111"}, []string{"us-east-1"}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, h.backend.CallCount("CreateStackInstances"))
	require.Len(t, h.publisher.Requests(), 1)
	assert.Equal(t, []string{"us-east-1"}, h.publisher.Requests()[0]["baseline"].Regions)
	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeps.Durations)
	assert.Contains(t, h.out.String(), "Request for baseline requeued")
}

func TestSubmit_Queue(t *testing.T) {
	h := withFakes(t)

	err := Submit(context.Background(), Options{}, []string{"111"}, []string{"eu-west-1", "eu-central-1"}, true)
	require.NoError(t, err)

	assert.Equal(t, 0, h.backend.CallCount("DescribeStackSet"))
	require.Len(t, h.publisher.Requests(), 1)
	assert.Equal(t, provisioning.Targets{
		Accounts: []string{"111"},
		Regions:  []string{"eu-west-1", "eu-central-1"},
	}, h.publisher.Requests()[0]["baseline"])
	assert.Contains(t, h.out.String(), "Queued 1 account(s) in 2 region(s) for baseline")
}

func TestSubmit_QueuePublishError(t *testing.T) {
	h := withFakes(t)
	h.publisher.Err = errors.New("throttled")

	err := Submit(context.Background(), Options{}, []string{"111"}, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSubmit_InvalidRequest(t *testing.T) {
	h := withFakes(t)

	err := Submit(context.Background(), Options{}, nil, nil, false)
	require.ErrorIs(t, err, provisioning.ErrInvalidRequest)
	assert.Equal(t, 0, h.backend.CallCount("DescribeStackSet"))
}

func TestSubmit_MissingStackSet(t *testing.T) {
	withFakes(t)

	err := Submit(context.Background(), Options{}, []string{"111"}, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline")
}

func TestInstances(t *testing.T) {
	tests := []struct {
		name        string
		interactive bool
		account     string
		contains    []string
		excludes    []string
	}{
		{
			name:     "plain",
			contains: []string{"111\teu-west-1\tCURRENT\t", "222\teu-west-1\tOUTDATED\tdrift"},
		},
		{
			name:     "plain filtered by account",
			account:  "222",
			contains: []string{"222\teu-west-1\tOUTDATED"},
			excludes: []string{"111"},
		},
		{
			name:        "styled",
			interactive: true,
			contains:    []string{"Stack instances: baseline", "111", "OUTDATED", "2 instance(s), 2 account(s), 1 region(s)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withFakes(t)
			h.interactive = tt.interactive
			h.backend.PageSize = 1
			h.backend.AddStackSet("baseline").AddInstances("baseline",
				provisioning.Instance{Account: "111", Region: "eu-west-1", Status: "CURRENT"},
				provisioning.Instance{Account: "222", Region: "eu-west-1", Status: "OUTDATED", StatusReason: "drift"},
			)

			require.NoError(t, Instances(context.Background(), Options{}, tt.account))

			for _, want := range tt.contains {
				assert.Contains(t, h.out.String(), want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, h.out.String(), unwanted)
			}
		})
	}
}

func TestInstances_OnlyNeedsName(t *testing.T) {
	h := withFakes(t)
	h.cfg.TopicARN = ""

	require.NoError(t, Instances(context.Background(), Options{}, ""))

	h.cfg.StackSetName = ""
	err := Instances(context.Background(), Options{}, "")
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestInstances_ListError(t *testing.T) {
	h := withFakes(t)
	h.backend.ListStackInstancesFunc = func(context.Context, string, string, string) ([]provisioning.Instance, string, error) {
		return nil, "", errors.New("access denied")
	}

	err := Instances(context.Background(), Options{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list stack instances")
}

func TestOperations(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		interactive bool
		contains    []string
	}{
		{
			name:     "plain",
			contains: []string{"op-1\tCREATE\tSUCCEEDED\t2024-05-01T12:00:00Z", "op-2\tDELETE\tRUNNING\t-"},
		},
		{
			name:        "styled",
			interactive: true,
			contains:    []string{"Operations: baseline", "op-1", "op-2", "RUNNING"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withFakes(t)
			h.interactive = tt.interactive
			h.backend.AddStackSet("baseline").
				AddOperation("baseline", provisioning.Operation{ID: "op-1", Action: "CREATE", Status: provisioning.OperationSucceeded, CreatedAt: created}).
				AddOperation("baseline", provisioning.Operation{ID: "op-2", Action: "DELETE", Status: provisioning.OperationRunning})

			require.NoError(t, Operations(context.Background(), Options{}))

			for _, want := range tt.contains {
				assert.Contains(t, h.out.String(), want)
			}
		})
	}
}

func TestStatusStyle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, successStyle.GetForeground(), statusStyle("CURRENT").GetForeground())
	assert.Equal(t, successStyle.GetForeground(), statusStyle("SUCCEEDED").GetForeground())
	assert.Equal(t, failureStyle.GetForeground(), statusStyle("INOPERABLE").GetForeground())
	assert.Equal(t, failureStyle.GetForeground(), statusStyle("FAILED").GetForeground())
	assert.Equal(t, pendingStyle.GetForeground(), statusStyle("RUNNING").GetForeground())
}
