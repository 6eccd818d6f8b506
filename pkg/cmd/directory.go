package cmd

import (
	"github.com/prismpsa/prism-workflow/pkg/directory"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
)

// NewDirectory loads the static directory file. Without a file only fixed assignees resolve.
//
// nolint:ireturn
func NewDirectory(path string) (workflow.Directory, error) {
	if path == "" {
		return nil, nil
	}

	dir, err := directory.Load(path)
	if err != nil {
		return nil, err
	}

	return dir, nil
}
