package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// IngestionService chunks, embeds and indexes materials.
type IngestionService interface {
	// Ingest registers a material, stores its upload and indexes its text.
	Ingest(ctx context.Context, principal domain.Principal, req IngestRequest) (*IngestionStatus, error)

	// Reprocess re-chunks and re-indexes an existing material from its blob.
	Reprocess(ctx context.Context, principal domain.Principal, materialID string) (*IngestionStatus, error)

	// Delete removes a material, its chunks, its vectors and its record.
	Delete(ctx context.Context, principal domain.Principal, materialID string) error

	// Status returns ingestion progress for a material.
	Status(ctx context.Context, principal domain.Principal, materialID string) (*IngestionStatus, error)

	// List returns the materials of the principal's tenant.
	List(ctx context.Context, principal domain.Principal) ([]domain.Material, error)
}

// IngestRequest describes an uploaded material.
type IngestRequest struct {
	// MaterialID is optional; one is generated when empty.
	MaterialID string

	// Title is the human-readable title. When empty the title found in
	// the upload, or derived from Filename, is used.
	Title string

	// Filename is the original file name, if known.
	Filename string

	// ContentType is the MIME type of Content.
	ContentType string

	// Content is the uploaded body. It is converted to text according to
	// ContentType; plain text pages are separated by form feeds.
	Content []byte
}

// IngestionStatus is the current state of a material's ingestion.
type IngestionStatus struct {
	// MaterialID identifies the material.
	MaterialID string

	// Running indicates the pipeline is processing the material.
	Running bool

	// Record is the persisted processing record.
	Record *domain.ProcessingRecord
}
