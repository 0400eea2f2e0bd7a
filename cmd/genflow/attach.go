package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/shintairiku/marketing-automation-sub003/pkg/generation"
)

func NewAttachCommand() *cli.Command {
	return &cli.Command{
		Name:  "attach",
		Usage: "Attach to an existing process: recover state, then follow realtime signals and the polling fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "process-id",
				Aliases:  []string{"p"},
				Usage:    "Process to attach to",
				Required: true,
			},
		},
		Action: runAttach,
	}
}

func runAttach(ctx context.Context, command *cli.Command) error {
	logger := rootLogger(command, "genflow-attach")
	processID := command.String("process-id")

	manager, err := newManager(command, processID, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	done := make(chan generation.State, 1)
	unsubscribe := manager.SubscribeState(watchState(ctx, logger, done))
	defer unsubscribe()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	// Recovery first: authoritative snapshot plus event log. The poller
	// starts only while the process is still active.
	if err := manager.LoadProcessState(ctx); err != nil {
		return fmt.Errorf("load process state: %w", err)
	}

	if state := manager.Snapshot(); state.Status.IsTerminal() {
		return report(logger, state)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case final := <-done:
		return report(logger, final)
	}
}
