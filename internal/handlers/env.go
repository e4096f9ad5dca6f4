// Package handlers adapts Lambda invocations to the provisioning components.
//
// Each invocation builds a fresh Env: configuration is read again, AWS
// clients are created, and nothing is carried over from earlier runs.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/logging"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/platform/cloudformation"
	"github.com/imamik/stackfleet/internal/platform/sns"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// metricsJob is the Pushgateway job name.
const metricsJob = "stackfleet"

// Env holds the collaborators of one invocation.
type Env struct {
	Config    config.Config
	Backend   provisioning.Backend
	Publisher provisioning.Publisher
	Logger    logr.Logger
	// Sleeper defaults to provisioning.Sleep.
	Sleeper provisioning.Sleeper
}

// Setup builds the Env of an invocation.
type Setup func(ctx context.Context) (*Env, error)

// AWSSetup reads the configuration from the environment and the invoked
// function ARN, then connects to CloudFormation and SNS with the default
// credential chain.
func AWSSetup(ctx context.Context) (*Env, error) {
	cfg, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		cfg.ApplyFunctionARN(lc.InvokedFunctionArn)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.ManagementRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.ManagementRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Env{
		Config:    cfg,
		Backend:   cloudformation.NewFromConfig(awsCfg),
		Publisher: sns.NewFromConfig(awsCfg, cfg.TopicARN),
		Logger:    logger,
	}, nil
}

func (e *Env) sleeper() provisioning.Sleeper {
	if e.Sleeper != nil {
		return e.Sleeper
	}
	return provisioning.Sleep
}

// invoke builds the Env, validates it, runs fn with the logger in ctx, and
// records the outcome. Metrics are pushed when a Pushgateway is configured.
func invoke(ctx context.Context, function string, setup Setup, validate func(config.Config) error, fn func(context.Context, *Env) error) error {
	env, err := setup(ctx)
	if err != nil {
		err = fmt.Errorf("failed to set up %s: %w", function, err)
		metrics.RecordInvocation(function, err)
		return err
	}
	if err := validate(env.Config); err != nil {
		metrics.RecordInvocation(function, err)
		return err
	}

	var requestID string
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}
	ctx = logging.IntoContext(ctx, env.Logger.WithValues("function", function), requestID)
	log := logr.FromContextOrDiscard(ctx)

	err = fn(ctx, env)
	metrics.RecordInvocation(function, err)
	if err != nil {
		log.Error(err, "Invocation failed")
	}

	if url := env.Config.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if perr := metrics.Push(pushCtx, url, metricsJob); perr != nil {
			log.Error(perr, "Failed to push metrics")
		}
	}
	return err
}
