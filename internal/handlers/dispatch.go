package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/dispatch"
	"github.com/imamik/stackfleet/internal/provisioning/instances"
	"github.com/imamik/stackfleet/internal/provisioning/lifecycle"
	"github.com/imamik/stackfleet/internal/util/async"
)

// FunctionDispatcher names the dispatcher Lambda in logs and metrics.
const FunctionDispatcher = "dispatcher"

// ErrUnrecognizedEvent is returned for payloads that match no known shape.
var ErrUnrecognizedEvent = errors.New("unrecognized event")

// Dispatcher handles everything delivered to the dispatcher Lambda: SNS
// batches of provisioning requests, Control Tower lifecycle events, and
// custom resource requests, which are acknowledged without action.
type Dispatcher struct {
	setup Setup
	ack   cfn.CustomResourceLambdaFunction
}

// NewDispatcher returns a Dispatcher handler.
func NewDispatcher(setup Setup) *Dispatcher {
	d := &Dispatcher{setup: setup}
	d.ack = cfn.LambdaWrap(d.acknowledge)
	return d
}

// shape holds just enough of a payload to route it.
type shape struct {
	Records     []json.RawMessage `json:"Records"`
	RequestType string            `json:"RequestType"`
	Detail      struct {
		EventName string `json:"eventName"`
	} `json:"detail"`
}

// Handle routes a raw Lambda payload.
func (d *Dispatcher) Handle(ctx context.Context, payload json.RawMessage) error {
	var s shape
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("%w: %w", ErrUnrecognizedEvent, err)
	}

	switch {
	case len(s.Records) > 0:
		var evt events.SNSEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("failed to decode SNS event: %w", err)
		}
		return invoke(ctx, FunctionDispatcher, d.setup, config.Config.Validate, func(ctx context.Context, env *Env) error {
			return d.handleRecords(ctx, env, evt.Records)
		})
	case s.Detail.EventName == lifecycle.CreateManagedAccount:
		var evt events.CloudWatchEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("failed to decode lifecycle event: %w", err)
		}
		return invoke(ctx, FunctionDispatcher, d.setup, config.Config.Validate, func(ctx context.Context, env *Env) error {
			return d.handleLifecycle(ctx, env, evt)
		})
	case s.RequestType != "":
		var evt cfn.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("failed to decode custom resource event: %w", err)
		}
		if _, err := d.ack(ctx, evt); err != nil {
			return fmt.Errorf("failed to acknowledge custom resource: %w", err)
		}
		return nil
	default:
		return ErrUnrecognizedEvent
	}
}

func (d *Dispatcher) dispatcher(env *Env) *dispatch.Dispatcher {
	prov := instances.New(env.Backend, instances.WithOperationPreferences(env.Config.OperationPreferences))
	return dispatch.New(env.Backend, prov, env.Publisher,
		dispatch.WithBackoff(env.Config.RequeueBackoff),
		dispatch.WithSleeper(env.sleeper()),
	)
}

// handleRecords dispatches every well-formed record concurrently. Records
// that do not hold a valid request are logged and skipped.
func (d *Dispatcher) handleRecords(ctx context.Context, env *Env, records []events.SNSEventRecord) error {
	log := logr.FromContextOrDiscard(ctx)
	disp := d.dispatcher(env)

	var tasks []async.Task
	for i, record := range records {
		req, err := provisioning.ParseRequest([]byte(record.SNS.Message))
		if err != nil {
			log.Error(err, "Skipping malformed SNS record", "messageID", record.SNS.MessageID)
			continue
		}
		tasks = append(tasks, async.Task{
			Name: "record " + strconv.Itoa(i),
			Func: func(ctx context.Context) error {
				return disp.Submit(ctx, req)
			},
		})
	}
	log.V(1).Info("Dispatching SNS records", "records", len(records), "valid", len(tasks))
	return async.RunParallel(ctx, tasks)
}

// handleLifecycle provisions a newly enrolled account in this invocation.
func (d *Dispatcher) handleLifecycle(ctx context.Context, env *Env, evt events.CloudWatchEvent) error {
	accountEvent, err := lifecycle.ParseEvent(evt)
	if err != nil {
		return err
	}

	prov := instances.New(env.Backend)
	adapter := lifecycle.NewAdapter(env.Config.StackSetName, env.Config.StackRegion, prov)
	req, ok, err := adapter.FromAccountEvent(ctx, accountEvent)
	if err != nil || !ok {
		return err
	}
	return d.dispatcher(env).Submit(ctx, req)
}

// acknowledge answers custom resource requests sent to this function.
func (d *Dispatcher) acknowledge(ctx context.Context, evt cfn.Event) (string, map[string]interface{}, error) {
	logr.FromContextOrDiscard(ctx).Info("Acknowledging custom resource request", "requestType", evt.RequestType)
	physicalID := evt.PhysicalResourceID
	if physicalID == "" {
		physicalID = evt.LogicalResourceID
	}
	return physicalID, nil, nil
}
