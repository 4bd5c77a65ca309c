package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/finch-technologies/go-sqs-listener/config"
	"github.com/finch-technologies/go-sqs-listener/log"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks errors caused by bad arguments; they exit with code 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra argument validator so its errors count as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)

	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
		return exitUsage
	}
	return exitFailure
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sqsd",
		Short:         "Queue consumer daemon",
		Long:          "sqsd polls a message queue, hands every message to a handler and routes failures to an error queue.",
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageErrorf("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.PersistentFlags().String("config", "", "Env-format config file; environment variables take precedence")

	root.AddCommand(newListenCommand(), newSendCommand(), newCreateQueueCommand())
	return root
}

type app struct {
	config  config.Config
	logger  log.LoggerInterface
	backend queue.Backend
}

// setup loads the configuration and builds the logger and queue backend
// shared by every command.
func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	logger := log.New(ctx, map[string]any{
		"service": "sqsd",
		"command": cmd.Name(),
	})

	backend, err := cfg.Backend(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrConfiguration) {
			return nil, usageError{err: err}
		}
		return nil, err
	}

	return &app{config: cfg, logger: logger, backend: backend}, nil
}
