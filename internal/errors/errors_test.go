package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

func TestCodeHelpersFollowWrapping(t *testing.T) {
	base := apperrors.NewStorageError("disk full", fmt.Errorf("write failed"))
	wrapped := fmt.Errorf("upsert: %w", base)

	assert.True(t, apperrors.IsStorage(wrapped))
	assert.False(t, apperrors.IsValidation(wrapped))
	assert.Equal(t, apperrors.ErrCodeStorage, apperrors.CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "write failed")
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(fmt.Errorf("boom")))
}

func TestNoActivity(t *testing.T) {
	err := fmt.Errorf("repo x: %w", apperrors.ErrNoActivity)
	assert.True(t, apperrors.IsNoActivity(err))
	assert.False(t, apperrors.IsSourceUnavailable(err))
}

func TestValidationMessage(t *testing.T) {
	err := apperrors.NewValidationError("days must be between 1 and %d", 365)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "VALIDATION: days must be between 1 and 365", err.Error())
}
