package cmd

import (
	"log/slog"

	"github.com/prismpsa/prism-workflow/pkg/registry"
)

func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes()

	return reg
}
