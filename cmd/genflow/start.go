package main

import (
	"context"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/shintairiku/marketing-automation-sub003/pkg/client"
	"github.com/shintairiku/marketing-automation-sub003/pkg/generation"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

func NewStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Create a process and stream its generation over the socket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "prompt",
				Usage:    "Article prompt",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "reference-url",
				Usage: "Reference URL added to the generation context",
			},
			&cli.BoolFlag{
				Name:  "auto",
				Usage: "Answer checkpoints automatically (first candidate, approve)",
				Value: true,
			},
		},
		Action: runStart,
	}
}

func runStart(ctx context.Context, command *cli.Command) error {
	logger := rootLogger(command, "genflow-start")

	api := client.NewAPI(command.String("api-url"), command.String("auth-token"), logger)

	req := models.StartGenerationRequest{
		UserPrompt:   command.String("prompt"),
		ReferenceURL: command.String("reference-url"),
	}

	proc, err := api.StartProcess(ctx, req)
	if err != nil {
		return fmt.Errorf("create process: %w", err)
	}

	logger.InfoContext(ctx, "Process created", "process_id", proc.ID)

	manager, err := newManager(command, proc.ID, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	done := make(chan generation.State, 1)
	unsubscribe := manager.SubscribeState(autoResponder(ctx, manager, command.Bool("auto"),
		watchState(ctx, logger, done)))
	defer unsubscribe()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	if err := manager.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := manager.StartArticleGeneration(req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case final := <-done:
		return report(logger, final)
	}
}

// autoResponder wraps the state watcher and, when enabled, answers each
// checkpoint with the first candidate or an approval.
func autoResponder(ctx context.Context, manager *client.ProcessManager, auto bool, next func(generation.State)) func(generation.State) {
	answered := make(map[models.InputType]bool)

	return func(state generation.State) {
		next(state)

		if !auto || !state.IsWaitingForInput || answered[state.InputType] {
			return
		}

		answered[state.InputType] = true

		var err error

		switch state.InputType {
		case models.InputSelectPersona:
			if len(state.Personas) > 0 {
				err = manager.SelectPersona(state.Personas[0].ID)
			}
		case models.InputSelectTheme:
			if len(state.Themes) > 0 {
				err = manager.SelectTheme(state.Themes[0].ID)
			}
		case models.InputApprovePlan:
			err = manager.ApprovePlan()
		case models.InputApproveOutline:
			err = manager.ApproveOutline()
		}

		if err != nil {
			slog.Default().WarnContext(ctx, "Auto-response failed",
				"input_type", string(state.InputType), "error", err)
		}
	}
}

func report(logger *slog.Logger, state generation.State) error {
	switch state.Status {
	case models.ProcessStatusCompleted:
		title := ""
		if state.FinalArticle != nil {
			title = state.FinalArticle.Title
		}

		logger.Info("Generation completed", "title", title, "article_id", state.ArticleID)

		return nil
	case models.ProcessStatusCancelled:
		logger.Warn("Generation cancelled")

		return nil
	default:
		return fmt.Errorf("generation failed: %s", state.ErrorMessage)
	}
}
