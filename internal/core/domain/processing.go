package domain

import (
	"fmt"
	"time"
)

// ProcessingStatus is the ingestion state of a material.
type ProcessingStatus string

// Processing states. COMPLETED and FAILED are terminal.
const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

// IsTerminal returns true for COMPLETED and FAILED.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the status is recognised.
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ProcessingRecord tracks ingestion progress for one material.
type ProcessingRecord struct {
	MaterialID      string
	Status          ProcessingStatus
	TotalChunks     int
	ProcessedChunks int
	FailedChunks    int
	EmbeddingModel  string
	LastError       string
	StartedAt       time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// NewProcessingRecord returns a PENDING record for a chunked material.
func NewProcessingRecord(materialID string, totalChunks int, model string, now time.Time) (*ProcessingRecord, error) {
	if materialID == "" {
		return nil, fmt.Errorf("%w: material id is required", ErrValidation)
	}
	if totalChunks < 0 {
		return nil, fmt.Errorf("%w: total chunks must not be negative", ErrValidation)
	}
	return &ProcessingRecord{
		MaterialID:     materialID,
		Status:         StatusPending,
		TotalChunks:    totalChunks,
		EmbeddingModel: model,
		StartedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Attempted returns the number of chunks that have been tried.
func (r *ProcessingRecord) Attempted() int {
	return r.ProcessedChunks + r.FailedChunks
}

// Remaining returns the number of chunks not yet attempted.
func (r *ProcessingRecord) Remaining() int {
	return r.TotalChunks - r.Attempted()
}

// Begin moves a PENDING record to PROCESSING. Calling it on a
// PROCESSING record is a no-op.
func (r *ProcessingRecord) Begin(now time.Time) error {
	switch r.Status {
	case StatusProcessing:
		return nil
	case StatusPending:
		r.Status = StatusProcessing
		r.UpdatedAt = now
		return r.settle(now)
	default:
		return fmt.Errorf("%w: material %s is already %s", ErrValidation, r.MaterialID, r.Status)
	}
}

// Apply adds the outcome of one batch. Once every chunk has been
// attempted the record becomes COMPLETED if none failed, otherwise FAILED.
func (r *ProcessingRecord) Apply(processed, failed int, now time.Time) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: cannot record progress for %s material %s", ErrValidation, r.Status, r.MaterialID)
	}
	if processed < 0 || failed < 0 {
		return fmt.Errorf("%w: negative chunk counts", ErrValidation)
	}
	if r.Attempted()+processed+failed > r.TotalChunks {
		return fmt.Errorf("%w: %d chunks attempted exceeds total %d",
			ErrValidation, r.Attempted()+processed+failed, r.TotalChunks)
	}

	r.ProcessedChunks += processed
	r.FailedChunks += failed
	r.UpdatedAt = now
	return r.settle(now)
}

// settle applies the all-or-nothing terminal policy.
func (r *ProcessingRecord) settle(now time.Time) error {
	if r.Status != StatusProcessing || r.Attempted() != r.TotalChunks {
		return nil
	}
	if r.FailedChunks == 0 {
		r.Status = StatusCompleted
	} else {
		r.Status = StatusFailed
	}
	r.CompletedAt = &now
	return nil
}
