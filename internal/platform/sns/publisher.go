// Package sns publishes provisioning requests to the SNS topic that feeds
// the dispatcher Lambda.
package sns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/retry"
)

// API is the subset of the SNS client used by Publisher.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Ensure interface compliance.
var (
	_ API                    = (*sns.Client)(nil)
	_ provisioning.Publisher = (*Publisher)(nil)
)

// Error codes that will not succeed on retry.
var fatalCodes = map[string]bool{
	"InvalidParameter":      true,
	"InvalidParameterValue": true,
	"NotFound":              true,
	"AuthorizationError":    true,
}

// Publisher sends provisioning requests to a single topic.
type Publisher struct {
	api       API
	topicARN  string
	retryOpts []retry.Option
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRetryOptions overrides the retry policy used for each publish.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(p *Publisher) {
		p.retryOpts = opts
	}
}

// New returns a Publisher for topicARN.
func New(api API, topicARN string, opts ...Option) *Publisher {
	p := &Publisher{
		api:      api,
		topicARN: topicARN,
		retryOpts: []retry.Option{
			retry.WithMaxRetries(3),
			retry.WithInitialDelay(500 * time.Millisecond),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds a Publisher from an AWS config.
func NewFromConfig(cfg aws.Config, topicARN string, opts ...Option) *Publisher {
	return New(sns.NewFromConfig(cfg), topicARN, opts...)
}

// TopicARN returns the topic requests are published to.
func (p *Publisher) TopicARN() string {
	return p.topicARN
}

// Publish sends req as the message body. Transient failures are retried.
func (p *Publisher) Publish(ctx context.Context, req provisioning.Request) error {
	body, err := req.Marshal()
	if err != nil {
		return err
	}

	log := logr.FromContextOrDiscard(ctx)
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Info("Retrying publish", "topic", p.topicARN, "attempt", attempt, "delay", delay, "error", err.Error())
		}),
	}, p.retryOpts...)

	var messageID string
	err = retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		out, err := p.api.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(p.topicARN),
			Message:  aws.String(body),
		})
		if err != nil {
			if isFatal(err) {
				return retry.Fatal(err)
			}
			return err
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	}, opts...)
	metrics.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topicARN, err)
	}

	log.V(1).Info("Published provisioning request", "topic", p.topicARN, "messageID", messageID, "stackSets", req.Names())
	return nil
}

func isFatal(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fatalCodes[apiErr.ErrorCode()]
	}
	return false
}
