package main

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/shintairiku/marketing-automation-sub003/pkg/channels/gochannel"
	"github.com/shintairiku/marketing-automation-sub003/pkg/client"
	"github.com/shintairiku/marketing-automation-sub003/pkg/eventbus"
	"github.com/shintairiku/marketing-automation-sub003/pkg/generation"
	"github.com/shintairiku/marketing-automation-sub003/pkg/log"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
	"github.com/shintairiku/marketing-automation-sub003/pkg/transport/realtime"
)

// newManager assembles the client stack for one process from the root flags:
// API client, in-process bus, optional realtime notifier and the manager.
func newManager(command *cli.Command, processID string, logger *slog.Logger) (*client.ProcessManager, error) {
	api := client.NewAPI(command.String("api-url"), command.String("auth-token"), logger)

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewWatermillEventBus(pub, sub)

	var notifier *realtime.Notifier

	if redisURL := command.String("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}

		notifier = realtime.NewNotifier(redis.NewClient(opts), logger)
	}

	return client.NewProcessManager(client.ManagerOptions{
		ProcessID:      processID,
		UserID:         command.String("user-id"),
		SocketEndpoint: command.String("ws-url"),
		API:            api,
		Bus:            bus,
		Notifier:       notifier,
		Logger:         logger,
	}), nil
}

func rootLogger(command *cli.Command, module string) *slog.Logger {
	log.Setup(command.String("log-level"))

	return log.WithModule(module)
}

// watchState logs every state change and signals done when the process
// reaches a terminal status.
func watchState(ctx context.Context, logger *slog.Logger, done chan<- generation.State) func(generation.State) {
	var lastStep models.StepID

	var signalled bool

	return func(state generation.State) {
		if state.CurrentStep != lastStep {
			lastStep = state.CurrentStep
			logger.InfoContext(ctx, "Step changed",
				"step", string(state.CurrentStep),
				"progress", state.ProgressPercentage)
		}

		if state.IsWaitingForInput {
			logger.InfoContext(ctx, "Waiting for input", "input_type", string(state.InputType))
		}

		if state.Status.IsTerminal() && !signalled {
			signalled = true

			select {
			case done <- state:
			default:
			}
		}
	}
}
