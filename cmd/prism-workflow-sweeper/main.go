// Package main runs the open step sweeper on a cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/cmd"
	"github.com/prismpsa/prism-workflow/pkg/log"
	"github.com/prismpsa/prism-workflow/pkg/sweeper"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultMetricsPort = 9092
	serviceName        = "prism-workflow-sweeper"
	shutdownTimeout    = 30 * time.Second
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "prism-workflow-sweeper",
		Usage:                 "Report unassigned and stale workflow steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule (five fields or @every) for sweeps",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which an open step is reported as stale",
				Value:   sweeper.DefaultStaleAfter,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics; 0 disables it",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single sweep and exit",
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

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			manager := workflow.NewManager(logger, persistence, cmd.NewRegistry(logger), nil)
			server := newMetricsServer(logger)

			s := sweeper.New(manager, logger,
				sweeper.WithPublisher(eventBus),
				sweeper.WithMetrics(server.metrics),
				sweeper.WithStaleAfter(command.Duration("stale-after")),
			)

			if command.Bool("once") {
				_, err := s.Sweep(ctx)

				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := s.Start(ctx, command.String("sweep-schedule")); err != nil {
				return err
			}

			if port := int(command.Int("metrics-port")); port > 0 {
				go func() {
					if err := server.Listen(port); err != nil {
						logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
					}
				}()
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			sig := <-signals
			logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig)

			cancel()

			stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()

			if err := server.Shutdown(stopCtx); err != nil {
				logger.ErrorContext(stopCtx, "Failed to stop metrics server", "error", err)
			}

			return s.Stop(stopCtx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("prism-workflow-sweeper exited with error", "error", err)
		os.Exit(1)
	}
}
