package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:                  "genflow",
		EnableShellCompletion: true,
		Usage:                 "Drive article generation processes from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the generation backend API",
				Value:   "http://localhost:8089",
				Sources: cli.EnvVars("GENFLOW_API_URL"),
			},
			&cli.StringFlag{
				Name:    "ws-url",
				Usage:   "Socket endpoint of the generation backend",
				Value:   "ws://localhost:8090/ws/article-generation",
				Sources: cli.EnvVars("GENFLOW_WS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for realtime change signals (optional)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Bearer token for the backend API",
				Value:   "",
				Sources: cli.EnvVars("GENFLOW_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "user-id",
				Usage:   "User id attached to the socket connection",
				Value:   "",
				Sources: cli.EnvVars("GENFLOW_USER_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewStartCommand(),
			NewAttachCommand(),
			NewSessionsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
