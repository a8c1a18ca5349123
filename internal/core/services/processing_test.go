package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestProcessingTracker_Lifecycle_Completed(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	ctx := context.Background()

	rec, err := tracker.Start(ctx, "mat-1", 5, "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)

	rec, err = tracker.Begin(ctx, "mat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, rec.Status)

	rec, err = tracker.Record(ctx, "mat-1", 3, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, rec.Status)

	rec, err = tracker.Record(ctx, "mat-1", 2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, "text-embedding-3-small", rec.EmbeddingModel)
}

func TestProcessingTracker_AnyFailureEndsFailed(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	ctx := context.Background()

	_, err := tracker.Start(ctx, "mat-1", 10, "m")
	require.NoError(t, err)
	_, err = tracker.Begin(ctx, "mat-1")
	require.NoError(t, err)

	rec, err := tracker.Record(ctx, "mat-1", 9, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, rec.Status)

	rec, err = tracker.Record(ctx, "mat-1", 0, 1, errors.New("provider timeout"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "provider timeout", rec.LastError)
	assert.Equal(t, 9, rec.ProcessedChunks)
	assert.Equal(t, 1, rec.FailedChunks)
}

func TestProcessingTracker_ZeroChunksCompletesOnBegin(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	ctx := context.Background()

	_, err := tracker.Start(ctx, "mat-1", 0, "m")
	require.NoError(t, err)

	rec, err := tracker.Begin(ctx, "mat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
}

func TestProcessingTracker_RejectsInvalidTransitions(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	ctx := context.Background()

	_, err := tracker.Start(ctx, "mat-1", 2, "m")
	require.NoError(t, err)

	// Progress before dispatch.
	_, err = tracker.Record(ctx, "mat-1", 1, 0, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tracker.Begin(ctx, "mat-1")
	require.NoError(t, err)

	// Over-counting.
	_, err = tracker.Record(ctx, "mat-1", 2, 1, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Progress after terminal.
	_, err = tracker.Record(ctx, "mat-1", 2, 0, nil)
	require.NoError(t, err)
	_, err = tracker.Record(ctx, "mat-1", 0, 0, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = tracker.Begin(ctx, "mat-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessingTracker_StartReplacesPrevious(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	ctx := context.Background()

	_, err := tracker.Start(ctx, "mat-1", 1, "m")
	require.NoError(t, err)
	_, err = tracker.Begin(ctx, "mat-1")
	require.NoError(t, err)
	_, err = tracker.Record(ctx, "mat-1", 0, 1, nil)
	require.NoError(t, err)

	rec, err := tracker.Start(ctx, "mat-1", 3, "m")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Zero(t, rec.FailedChunks)
}

func TestProcessingTracker_UnknownMaterial(t *testing.T) {
	tracker := NewProcessingTracker(memory.NewProcessingStore())

	_, err := tracker.Begin(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = tracker.Start(context.Background(), "", 1, "m")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessingTracker_TerminalInvariant(t *testing.T) {
	tests := []struct {
		name    string
		batches [][2]int
		want    domain.ProcessingStatus
	}{
		{"all processed", [][2]int{{2, 0}, {2, 0}}, domain.StatusCompleted},
		{"one failed batch", [][2]int{{2, 0}, {0, 2}}, domain.StatusFailed},
		{"mixed batch", [][2]int{{3, 1}}, domain.StatusFailed},
		{"all failed", [][2]int{{0, 4}}, domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewProcessingTracker(memory.NewProcessingStore())
			ctx := context.Background()
			_, err := tracker.Start(ctx, "mat", 4, "m")
			require.NoError(t, err)
			_, err = tracker.Begin(ctx, "mat")
			require.NoError(t, err)

			var rec *domain.ProcessingRecord
			for i, b := range tt.batches {
				rec, err = tracker.Record(ctx, "mat", b[0], b[1], nil)
				require.NoError(t, err)
				if i < len(tt.batches)-1 {
					assert.False(t, rec.Status.IsTerminal())
				}
			}
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, rec.TotalChunks, rec.ProcessedChunks+rec.FailedChunks)
		})
	}
}
