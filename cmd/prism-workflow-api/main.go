package main

import (
	"context"
	"os"

	"github.com/prismpsa/prism-workflow/pkg/cmd"
	"github.com/prismpsa/prism-workflow/pkg/log"
	"github.com/prismpsa/prism-workflow/pkg/metrics"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "prism-workflow"
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "prism-workflow-api",
		Usage:                 "Manage workflow templates and run project workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
				Name:    "redis-url",
				Usage:   "Redis URL for instance locks shared between replicas; in-process locks when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "directory-file",
				Usage:   "YAML file with users, role members and department owners",
				Sources: cli.EnvVars("DIRECTORY_FILE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export spans over OTLP",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing PRISM workflow API")

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

			locker, closeLocker, err := cmd.NewLocker(ctx, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeLocker(); err != nil {
					logger.ErrorContext(ctx, "Failed to close locker", "error", err)
				}
			}()

			directory, err := cmd.NewDirectory(command.String("directory-file"))
			if err != nil {
				return err
			}

			if directory == nil {
				logger.WarnContext(ctx, "No directory file configured, role and department steps will stay unassigned")
			}

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), serviceName)
			if err != nil {
				return err
			}

			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
				}
			}()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			registry := cmd.NewRegistry(logger)

			manager := workflow.NewManager(logger, persistence, registry, directory,
				workflow.WithLocker(locker),
				workflow.WithPublisher(eventBus),
				workflow.WithTracer(tracer),
				workflow.WithMetrics(metrics.New(reg)),
			)

			api := NewAPI(logger, persistence, registry, manager, reg)

			if err := api.Start(int(command.Int("port"))); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("prism-workflow-api exited with error", "error", err)
		os.Exit(1)
	}
}
