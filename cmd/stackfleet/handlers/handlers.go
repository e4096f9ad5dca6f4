// Package handlers implements the operator CLI commands.
//
// Each handler loads the configuration, builds AWS-backed collaborators
// through the factory variables below, and runs one provisioning
// component. Tests replace the factories with in-memory fakes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/charmbracelet/huh"
	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/logging"
	"github.com/imamik/stackfleet/internal/platform/cloudformation"
	"github.com/imamik/stackfleet/internal/platform/sns"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// ErrAborted is returned when the operator declines a confirmation.
var ErrAborted = errors.New("aborted")

// Options are the flags shared by every command.
type Options struct {
	ConfigPath string
	Profile    string
	Region     string
	Debug      bool
}

// Clients are the AWS-backed collaborators of a command.
type Clients struct {
	Backend   provisioning.Backend
	Publisher provisioning.Publisher
}

// Factory function variables - can be replaced in tests.
var (
	// loadConfig reads the YAML file when given, otherwise the environment.
	loadConfig = func(path string) (config.Config, error) {
		if path == "" {
			return config.LoadEnv()
		}
		return config.LoadFile(path, os.Getenv)
	}

	// newClients connects to CloudFormation and SNS.
	newClients = func(ctx context.Context, cfg config.Config, profile string) (*Clients, error) {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.ManagementRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.ManagementRegion))
		}
		if profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return &Clients{
			Backend:   cloudformation.NewFromConfig(awsCfg),
			Publisher: sns.NewFromConfig(awsCfg, cfg.TopicARN),
		}, nil
	}

	newLogger = logging.New

	// sleeper waits between operation polls and before requeues.
	sleeper provisioning.Sleeper = provisioning.Sleep

	// isInteractive reports whether stdout is a terminal.
	isInteractive = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	// confirm asks a yes/no question on the terminal.
	confirm = func(ctx context.Context, title, description string) (bool, error) {
		var ok bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		))
		if err := form.RunWithContext(ctx); err != nil {
			return false, fmt.Errorf("confirmation canceled: %w", err)
		}
		return ok, nil
	}

	// output receives command results.
	output io.Writer = os.Stdout
)

// requireName is the validation for read-only commands.
func requireName(cfg config.Config) error {
	if cfg.StackSetName == "" {
		return fmt.Errorf("%w: stack set name is required", config.ErrInvalid)
	}
	return nil
}

// setup loads and validates the configuration, attaches a logger to ctx,
// and builds the clients.
func setup(ctx context.Context, opts Options, validate func(config.Config) error) (context.Context, config.Config, *Clients, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return ctx, cfg, nil, err
	}
	if opts.Region != "" {
		// A stack region derived from the old management region follows the flag.
		if cfg.StackRegion == cfg.ManagementRegion {
			cfg.StackRegion = ""
		}
		cfg.ManagementRegion = opts.Region
	}
	cfg.SetManagement("", "")

	if err := validate(cfg); err != nil {
		return ctx, cfg, nil, err
	}

	logger, err := newLogger(opts.Debug || cfg.Debug)
	if err != nil {
		return ctx, cfg, nil, err
	}
	ctx = logr.NewContext(ctx, logger)

	clients, err := newClients(ctx, cfg, opts.Profile)
	if err != nil {
		return ctx, cfg, nil, err
	}
	return ctx, cfg, clients, nil
}
