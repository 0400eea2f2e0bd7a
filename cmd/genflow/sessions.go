package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/shintairiku/marketing-automation-sub003/pkg/chat"
	"github.com/shintairiku/marketing-automation-sub003/pkg/client"
)

func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage agent chat sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List sessions",
				Action: runSessionsList,
			},
			{
				Name:  "send",
				Usage: "Send one message and wait for the assistant reply",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session-id",
						Aliases:  []string{"s"},
						Usage:    "Session to send to (created when empty)",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "message",
						Aliases:  []string{"m"},
						Usage:    "Message content",
						Required: true,
					},
				},
				Action: runSessionsSend,
			},
		},
	}
}

func runSessionsList(ctx context.Context, command *cli.Command) error {
	logger := rootLogger(command, "genflow-sessions")
	api := client.NewAPI(command.String("api-url"), command.String("auth-token"), logger)

	sessions, err := api.ListSessions(ctx)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		fmt.Printf("%s\t%s\t%d messages\n", session.ID, session.Title, len(session.Messages))
	}

	return nil
}

func runSessionsSend(ctx context.Context, command *cli.Command) error {
	logger := rootLogger(command, "genflow-sessions")
	api := client.NewAPI(command.String("api-url"), command.String("auth-token"), logger)

	sessionID := command.String("session-id")
	if sessionID == "" {
		created, err := api.CreateSession(ctx, "cli session")
		if err != nil {
			return err
		}

		sessionID = created.ID
		logger.InfoContext(ctx, "Session created", "session_id", sessionID)
	}

	session := chat.NewSession(api, logger)
	if err := session.Activate(ctx, sessionID); err != nil {
		return err
	}

	localID, err := session.SendMessage(ctx, command.String("message"))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if err := session.AwaitCompletion(ctx, localID); err != nil {
		return err
	}

	for _, msg := range session.Messages() {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}

	return nil
}
