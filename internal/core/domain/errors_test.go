package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allErrors() []error {
	return []error{
		ErrValidation,
		ErrProvider,
		ErrIndex,
		ErrIndexNotReady,
		ErrNotFound,
		ErrQuotaExceeded,
		ErrUnauthorized,
		ErrAlreadyExists,
		ErrIngestionInProgress,
	}
}

func TestErrors_Uniqueness(t *testing.T) {
	errs := allErrors()
	for i, a := range errs {
		assert.NotEmpty(t, a.Error())
		for j, b := range errs {
			if i != j {
				assert.NotErrorIs(t, a, b, "%v must not match %v", a, b)
			}
		}
	}
}

func TestErrors_WithWrapping(t *testing.T) {
	for _, sentinel := range allErrors() {
		wrapped := fmt.Errorf("loading material bio: %w", sentinel)
		assert.ErrorIs(t, wrapped, sentinel)
		assert.ErrorIs(t, fmt.Errorf("outer: %w", wrapped), sentinel)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"validation", ErrValidation, KindValidation},
		{"provider", fmt.Errorf("embed: %w", ErrProvider), KindProvider},
		{"index", ErrIndex, KindIndex},
		{"index not ready", ErrIndexNotReady, KindIndex},
		{"not found", fmt.Errorf("material x: %w", ErrNotFound), KindNotFound},
		{"quota", ErrQuotaExceeded, KindQuotaExceeded},
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"already exists", ErrAlreadyExists, KindConflict},
		{"ingestion in progress", ErrIngestionInProgress, KindConflict},
		{"plain", errors.New("disk full"), KindInternal},
		{"quota wins over provider", errors.Join(ErrProvider, ErrQuotaExceeded), KindQuotaExceeded},
		{"validation wins over provider", errors.Join(ErrProvider, ErrValidation), KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("timeout: %w", ErrProvider)))
	assert.False(t, IsRetryable(ErrValidation))
	assert.False(t, IsRetryable(ErrIndex))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorf(t *testing.T) {
	err := errorf(ErrNotFound, "material %s", "bio")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not found: material bio", err.Error())
}
