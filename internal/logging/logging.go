// Package logging builds the structured logger used by the Lambda functions
// and the CLI.
//
// Components never hold a logger of their own; they read it from the
// context with logr.FromContextOrDiscard, so callers decide where logs go.
package logging

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New returns a zap-backed logr.Logger. Production mode writes JSON at info
// level, which CloudWatch indexes; development mode writes console output
// and enables V(1) debug lines.
func New(development bool) (logr.Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

// IntoContext attaches logger to ctx with the invocation's request id.
func IntoContext(ctx context.Context, logger logr.Logger, requestID string) context.Context {
	if requestID != "" {
		logger = logger.WithValues("requestID", requestID)
	}
	return logr.NewContext(ctx, logger)
}
