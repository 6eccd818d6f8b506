package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		instanceErr := persistence.NewInstanceError("Update", "instance-123", persistence.ErrInstanceNotFound)
		templateErr := persistence.NewTemplateError("GetByID", "template-456", persistence.ErrTemplateNotFound)
		raceErr := fmt.Errorf("commit: %w", persistence.NewInstanceError("Update", "instance-123", persistence.ErrConcurrentUpdate))

		assert.True(t, persistence.IsInstanceNotFound(instanceErr))
		assert.True(t, persistence.IsTemplateNotFound(templateErr))
		assert.True(t, persistence.IsConcurrentUpdate(raceErr))
		assert.False(t, persistence.IsTemplateNotFound(instanceErr))

		assert.True(t, errors.Is(instanceErr, persistence.ErrInstanceNotFound))
		assert.True(t, errors.Is(templateErr, persistence.ErrTemplateNotFound))
	})

	t.Run("instance error contains context", func(t *testing.T) {
		err := persistence.NewInstanceError("Update", "instance-123", persistence.ErrConcurrentUpdate)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "instance-123")
		assert.Contains(t, err.Error(), "concurrent instance update")
	})

	t.Run("template error contains context", func(t *testing.T) {
		err := persistence.NewTemplateError("Delete", "template-456", persistence.ErrTemplateNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "template-456")
		assert.Contains(t, err.Error(), "template not found")
	})
}
