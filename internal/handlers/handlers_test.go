package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/fakes"
	"github.com/imamik/stackfleet/internal/provisioning/lifecycle"
	"github.com/imamik/stackfleet/internal/provisioning/registration"
)

const functionARN = "arn:aws:lambda:us-east-1:999:function:stackfleet"

type fixture struct {
	cfg       config.Config
	backend   *fakes.Backend
	publisher *fakes.Publisher
	sleeps    *fakes.Sleeps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Config{
		StackSetName: "baseline",
		TemplateURL:  "https://bucket.s3.amazonaws.com/baseline.yaml",
		TopicARN:     "arn:aws:sns:us-east-1:999:stackfleet",
		SeedAccounts: "111,222",
	}
	cfg.ApplyFunctionARN(functionARN)
	return &fixture{
		cfg:       cfg,
		backend:   fakes.NewBackend(),
		publisher: &fakes.Publisher{},
		sleeps:    &fakes.Sleeps{},
	}
}

func (f *fixture) setup(t *testing.T) Setup {
	return func(context.Context) (*Env, error) {
		return &Env{
			Config:    f.cfg,
			Backend:   f.backend,
			Publisher: f.publisher,
			Logger:    testr.New(t),
			Sleeper:   f.sleeps.Sleep,
		}, nil
	}
}

func lambdaContext() context.Context {
	return lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{
		AwsRequestID:       "req-1",
		InvokedFunctionArn: functionARN,
	})
}

func TestOnboarding_Create(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewOnboarding(f.setup(t))

	physicalID, data, err := h.Handle(lambdaContext(), cfn.Event{RequestType: cfn.RequestCreate})
	require.NoError(t, err)
	assert.Equal(t, "baseline", physicalID)
	assert.Equal(t, map[string]interface{}{"StackSetName": "baseline", "Created": true}, data)
	assert.Equal(t, []provisioning.Request{
		{"baseline": {Accounts: []string{"111", "222"}, Regions: []string{"us-east-1"}}},
	}, f.publisher.Requests())
}

func TestOnboarding_UpdateIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.AddStackSet("baseline")
	h := NewOnboarding(f.setup(t))

	physicalID, data, err := h.Handle(lambdaContext(), cfn.Event{RequestType: cfn.RequestUpdate, PhysicalResourceID: "baseline"})
	require.NoError(t, err)
	assert.Equal(t, "baseline", physicalID)
	assert.Equal(t, false, data["Created"])
	assert.Zero(t, f.backend.CallCount("CreateStackSet"))
	assert.Empty(t, f.publisher.Requests())
}

func TestOnboarding_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.AddStackSet("baseline").AddInstances("baseline",
		provisioning.Instance{Account: "111", Region: "us-east-1"},
		provisioning.Instance{Account: "222", Region: "us-east-1"},
	)
	h := NewOnboarding(f.setup(t))

	ctx, cancel := context.WithTimeout(lambdaContext(), time.Minute)
	defer cancel()

	physicalID, _, err := h.Handle(ctx, cfn.Event{RequestType: cfn.RequestDelete, PhysicalResourceID: "baseline"})
	require.NoError(t, err)
	assert.Equal(t, "baseline", physicalID)
	assert.Equal(t, 1, f.backend.CallCount("DeleteStackInstances"))
	assert.Equal(t, 1, f.backend.CallCount("DeleteStackSet"))
	assert.Empty(t, f.backend.StackSets)
}

func TestOnboarding_InvalidConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.TemplateURL = ""
	h := NewOnboarding(f.setup(t))

	_, _, err := h.Handle(lambdaContext(), cfn.Event{RequestType: cfn.RequestCreate})
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Empty(t, f.backend.Calls)
}

func TestOnboarding_SetupFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no credentials")
	h := NewOnboarding(func(context.Context) (*Env, error) { return nil, boom })

	_, _, err := h.Handle(lambdaContext(), cfn.Event{RequestType: cfn.RequestCreate})
	assert.ErrorIs(t, err, boom)
}

func TestOnboarding_UnsupportedRequestType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, _, err := NewOnboarding(f.setup(t)).Handle(lambdaContext(), cfn.Event{RequestType: "Replace"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported request type")
}

func TestTeardownBudget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(10*time.Second))
	defer cancel()
	assert.Equal(t, 10*time.Second-DeadlineReserve, TeardownBudget(ctx, now))

	assert.Equal(t, time.Duration(0), TeardownBudget(ctx, now.Add(time.Minute)))
	assert.Equal(t, DefaultTeardownBudget, TeardownBudget(context.Background(), now))
	assert.Greater(t, DeadlineReserve, registration.StackSetDeleteTimeout, "reserve leaves room for the response")
}

func snsPayload(t *testing.T, messages ...string) json.RawMessage {
	t.Helper()
	type sns struct {
		MessageID string `json:"MessageId"`
		Message   string `json:"Message"`
	}
	type record struct {
		EventSource string `json:"EventSource"`
		SNS         sns    `json:"Sns"`
	}
	var records []record
	for i, m := range messages {
		records = append(records, record{EventSource: "aws:sns", SNS: sns{MessageID: string(rune('a' + i)), Message: m}})
	}
	data, err := json.Marshal(map[string]any{"Records": records})
	require.NoError(t, err)
	return data
}

func TestDispatcher_SNSRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.AddStackSet("baseline")
	h := NewDispatcher(f.setup(t))

	payload := snsPayload(t,
		`{"baseline":{"targetAccounts":["111"],"targetRegions":["us-east-1"]}}`,
		`not json`,
		`{"baseline":{"targetAccounts":[],"targetRegions":["us-east-1"]}}`,
	)

	require.NoError(t, h.Handle(lambdaContext(), payload))
	require.Len(t, f.backend.CreateRequests, 1)
	assert.Equal(t, []string{"111"}, f.backend.CreateRequests[0].Accounts)
}

func TestDispatcher_SNSRecordRequeued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.AddStackSet("baseline").AddOperation("baseline",
		provisioning.Operation{ID: "busy", Status: provisioning.OperationRunning})
	h := NewDispatcher(f.setup(t))

	msg := `{"baseline":{"targetAccounts":["111"],"targetRegions":["us-east-1"]}}`
	require.NoError(t, h.Handle(lambdaContext(), snsPayload(t, msg)))

	assert.Empty(t, f.backend.CreateRequests)
	assert.Equal(t, []time.Duration{20 * time.Second}, f.sleeps.Durations)
	require.Len(t, f.publisher.Requests(), 1)
	body, err := f.publisher.Requests()[0].Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, msg, body)
}

func TestDispatcher_SNSMissingStackSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := NewDispatcher(f.setup(t))

	err := h.Handle(lambdaContext(), snsPayload(t, `{"other":{"targetAccounts":["1"],"targetRegions":["r"]}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other")
}

func lifecyclePayload(state, account string) json.RawMessage {
	return json.RawMessage(`{
  "version": "0",
  "id": "evt-1",
  "detail-type": "AWS Service Event via CloudTrail",
  "source": "aws.controltower",
  "account": "999",
  "region": "us-east-1",
  "detail": {
    "eventName": "CreateManagedAccount",
    "serviceEventDetails": {
      "createManagedAccountStatus": {
        "state": "` + state + `",
        "account": {"accountName": "dev", "accountId": "` + account + `"}
      }
    }
  }
}`)
}

func TestDispatcher_LifecycleEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.StackRegion = "eu-central-1"
	f.backend.AddStackSet("baseline")
	h := NewDispatcher(f.setup(t))

	require.NoError(t, h.Handle(lambdaContext(), lifecyclePayload("SUCCEEDED", "333")))
	require.Len(t, f.backend.CreateRequests, 1)
	assert.Equal(t, []string{"333"}, f.backend.CreateRequests[0].Accounts)
	assert.Equal(t, []string{"eu-central-1"}, f.backend.CreateRequests[0].Regions)

	// Redelivery finds the instance and does nothing.
	require.NoError(t, h.Handle(lambdaContext(), lifecyclePayload("SUCCEEDED", "333")))
	assert.Len(t, f.backend.CreateRequests, 1)
}

func TestDispatcher_LifecycleEventFailedState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.AddStackSet("baseline")
	h := NewDispatcher(f.setup(t))

	err := h.Handle(lambdaContext(), lifecyclePayload("FAILED", "333"))
	assert.ErrorIs(t, err, lifecycle.ErrUnexpectedState)
	assert.Empty(t, f.backend.CreateRequests)
}

func TestDispatcher_AcknowledgesCustomResource(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		resp cfn.Response
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, json.Unmarshal(body, &resp))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t)
	h := NewDispatcher(f.setup(t))

	payload, err := json.Marshal(cfn.Event{
		RequestType:       cfn.RequestCreate,
		RequestID:         "r-1",
		ResponseURL:       srv.URL,
		LogicalResourceID: "DispatcherSubscription",
		StackID:           "stack",
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(lambdaContext(), payload))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, cfn.StatusSuccess, resp.Status)
	assert.Equal(t, "DispatcherSubscription", resp.PhysicalResourceID)
	assert.Empty(t, f.backend.Calls)
}

func TestDispatcher_UnrecognizedEvent(t *testing.T) {
	t.Parallel()

	h := NewDispatcher(newFixture(t).setup(t))

	assert.ErrorIs(t, h.Handle(context.Background(), json.RawMessage(`{"hello":"world"}`)), ErrUnrecognizedEvent)
	assert.ErrorIs(t, h.Handle(context.Background(), json.RawMessage(`[1,2]`)), ErrUnrecognizedEvent)
}

func TestInvoke_PushesMetrics(t *testing.T) {
	t.Parallel()

	pushed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case pushed <- r.URL.Path:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t)
	f.cfg.PushgatewayURL = srv.URL
	f.backend.AddStackSet("baseline")

	_, _, err := NewOnboarding(f.setup(t)).Handle(lambdaContext(), cfn.Event{RequestType: cfn.RequestCreate})
	require.NoError(t, err)

	select {
	case path := <-pushed:
		assert.Equal(t, "/metrics/job/stackfleet", path)
	default:
		t.Fatal("metrics were not pushed")
	}
}
