package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/shintairiku/marketing-automation-sub003/internal/simulator"
	"github.com/shintairiku/marketing-automation-sub003/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:                  "genflow-simulator",
		EnableShellCompletion: true,
		Usage:                 "Run a local mock of the article generation backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP API port",
				Value:   8089,
				Sources: cli.EnvVars("SIMULATOR_PORT"),
			},
			&cli.StringFlag{
				Name:    "ws-addr",
				Usage:   "Socket gateway listen address",
				Value:   ":8090",
				Sources: cli.EnvVars("SIMULATOR_WS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for row-change signals (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "step-lag",
				Usage:   "Delay between scripted pipeline steps",
				Value:   300 * time.Millisecond,
				Sources: cli.EnvVars("SIMULATOR_STEP_LAG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("genflow-simulator")

			var rdb *redis.Client

			if redisURL := command.String("redis-url"); redisURL != "" {
				opts, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				rdb = redis.NewClient(opts)
				logger.InfoContext(ctx, "Publishing change signals to redis")
			}

			store := simulator.NewStore(rdb)
			sessions := simulator.NewSessionStore()
			stepLag := command.Duration("step-lag")

			gateway := simulator.NewGateway(store, logger, stepLag)
			go func() {
				if err := gateway.ListenAndServe(command.String("ws-addr")); err != nil {
					logger.Error("Socket gateway stopped", "error", err)
					os.Exit(1)
				}
			}()

			logger.InfoContext(ctx, "Simulator listening",
				"port", command.Int("port"), "ws_addr", command.String("ws-addr"))

			server := simulator.NewServer(store, sessions, logger, stepLag)

			return server.Start(command.Int("port"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
