package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prismpsa/prism-workflow/pkg/cmd"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/services"
	"github.com/urfave/cli/v3"
)

var ErrInvalidTemplates = errors.New("invalid templates found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate every stored workflow template",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.BoolFlag{
				Name:  "active-only",
				Usage: "Skip inactive templates",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "prism-workflow-api", "action", "validate")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			return validateTemplates(ctx, command.Root().Writer, store, command.Bool("active-only"))
		},
	}
}

func validateTemplates(ctx context.Context, out io.Writer, store persistence.Persistence, activeOnly bool) error {
	templateService := services.NewTemplate(store, cmd.NewRegistry(slog.Default()))

	templates, err := templateService.List(ctx, services.ListTemplatesRequest{ActiveOnly: activeOnly})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	invalid := 0

	for _, template := range templates {
		if err := templateService.Validate(template); err != nil {
			invalid++

			_, _ = fmt.Fprintf(out, "INVALID %s (%s): %v\n", template.ID, template.Name, err)

			continue
		}

		_, _ = fmt.Fprintf(out, "OK      %s (%s)\n", template.ID, template.Name)
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidTemplates, invalid, len(templates))
	}

	return nil
}
