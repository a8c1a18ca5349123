package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// DefaultIngestionWindow is the number of chunks embedded and indexed
// before the processing record is updated.
const DefaultIngestionWindow = 100

// IngestionPipeline coordinates material ingestion: chunking, embedding,
// indexing and progress tracking.
type IngestionPipeline struct {
	materials driven.MaterialStore
	blobs     driven.BlobStore
	chunker   driven.ChunkPipeline
	embedder  driving.EmbeddingService
	index     driving.VectorIndexService
	tracker   driving.ProcessingTracker
	authz     driven.Authorizer
	formats   driven.NormaliserRegistry
	window    int
	now       func() time.Time
	log       logger.Logger

	// Status tracking
	mu     sync.RWMutex
	active map[string]*driving.IngestionStatus
}

// IngestionOption configures the ingestion pipeline.
type IngestionOption func(*IngestionPipeline)

// WithIngestionWindow sets how many chunks are processed per progress update.
func WithIngestionWindow(n int) IngestionOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithNormalisers converts uploads to text by content type before
// chunking. Without it uploads must already be UTF-8 text.
func WithNormalisers(r driven.NormaliserRegistry) IngestionOption {
	return func(p *IngestionPipeline) {
		p.formats = r
	}
}

// NewIngestionPipeline creates a new ingestion pipeline.
func NewIngestionPipeline(
	materials driven.MaterialStore,
	blobs driven.BlobStore,
	chunker driven.ChunkPipeline,
	embedder driving.EmbeddingService,
	index driving.VectorIndexService,
	tracker driving.ProcessingTracker,
	authz driven.Authorizer,
	opts ...IngestionOption,
) *IngestionPipeline {
	p := &IngestionPipeline{
		materials: materials,
		blobs:     blobs,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		tracker:   tracker,
		authz:     authz,
		window:    DefaultIngestionWindow,
		now:       time.Now,
		log:       logger.With("ingestion"),
		active:    make(map[string]*driving.IngestionStatus),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores the upload, registers the material in the principal's
// tenant and indexes its text. Re-ingesting an existing material replaces
// its chunks and vectors.
func (p *IngestionPipeline) Ingest(
	ctx context.Context,
	principal domain.Principal,
	req driving.IngestRequest,
) (*driving.IngestionStatus, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: material content is empty", domain.ErrValidation)
	}
	text, title, err := p.extract(ctx, req.Filename, req.ContentType, req.Content)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		req.Title = title
	}

	now := p.now()
	material := &domain.Material{
		ID:          req.MaterialID,
		TenantID:    principal.TenantID,
		Title:       req.Title,
		ContentType: req.ContentType,
		CreatedAt:   now,
	}
	if material.ID == "" {
		material.ID = uuid.NewString()
	} else {
		existing, err := p.materials.GetMaterial(ctx, material.ID)
		switch {
		case err == nil:
			if err := p.authz.CanAccessMaterial(ctx, principal, existing); err != nil {
				return nil, err
			}
			material.CreatedAt = existing.CreatedAt
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("get material %s: %w", material.ID, err)
		}
	}
	if err := p.authz.CanAccessMaterial(ctx, principal, material); err != nil {
		return nil, err
	}
	if err := material.Validate(); err != nil {
		return nil, err
	}

	status, err := p.claim(material.ID)
	if err != nil {
		return nil, err
	}
	defer p.release(material.ID)

	material.BlobKey = material.TenantID + "/" + material.ID
	if err := p.blobs.Put(ctx, material.BlobKey, req.Content); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return p.run(ctx, status, material, text)
}

// Reprocess re-chunks and re-indexes a material from its stored upload.
func (p *IngestionPipeline) Reprocess(
	ctx context.Context,
	principal domain.Principal,
	materialID string,
) (*driving.IngestionStatus, error) {
	if _, err := p.authorized(ctx, principal, materialID); err != nil {
		return nil, err
	}

	status, err := p.claim(materialID)
	if err != nil {
		return nil, err
	}
	defer p.release(materialID)

	// Reload under the claim: a delete may have finished in between.
	material, err := p.authorized(ctx, principal, materialID)
	if err != nil {
		return nil, err
	}
	if material.BlobKey == "" {
		return nil, fmt.Errorf("%w: material %s has no stored upload", domain.ErrNotFound, materialID)
	}

	data, err := p.blobs.Get(ctx, material.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load upload: %w", err)
	}
	text, _, err := p.extract(ctx, "", material.ContentType, data)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, status, material, text)
}

// extract returns the text and detected title of an upload.
func (p *IngestionPipeline) extract(
	ctx context.Context,
	filename, contentType string,
	content []byte,
) (string, string, error) {
	if p.formats == nil {
		if !utf8.Valid(content) {
			return "", "", fmt.Errorf("%w: material content is not valid UTF-8 text", domain.ErrValidation)
		}
		return string(content), "", nil
	}
	res, err := p.formats.Normalise(ctx, &driven.Upload{
		Filename: filename,
		MIMEType: contentType,
		Content:  content,
	})
	if err != nil {
		return "", "", err
	}
	return res.Text, res.Title, nil
}

// Delete removes a material's vectors, processing record, upload, chunks
// and the material itself. Vectors go first so a partial failure never
// leaves vectors without a material. The material is claimed for the
// duration, so ingest, reprocess and delete of one ID never overlap.
func (p *IngestionPipeline) Delete(ctx context.Context, principal domain.Principal, materialID string) error {
	if _, err := p.authorized(ctx, principal, materialID); err != nil {
		return err
	}

	if _, err := p.claim(materialID); err != nil {
		return err
	}
	defer p.release(materialID)

	material, err := p.authorized(ctx, principal, materialID)
	if err != nil {
		return err
	}

	n, err := p.index.DeleteByMaterial(ctx, material.TenantID, material.ID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := p.tracker.Delete(ctx, material.ID); err != nil {
		return fmt.Errorf("delete processing record: %w", err)
	}
	if material.BlobKey != "" {
		if err := p.blobs.Delete(ctx, material.BlobKey); err != nil {
			return fmt.Errorf("delete upload: %w", err)
		}
	}
	if err := p.materials.DeleteMaterial(ctx, material.ID); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}

	p.log.Info("deleted material %s and %d vectors", material.ID, n)
	return nil
}

// Status returns ingestion progress for a material.
func (p *IngestionPipeline) Status(
	ctx context.Context,
	principal domain.Principal,
	materialID string,
) (*driving.IngestionStatus, error) {
	if _, err := p.authorized(ctx, principal, materialID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if status, ok := p.active[materialID]; ok {
		// Return a copy to avoid race conditions
		out := copyStatus(status)
		p.mu.RUnlock()
		return out, nil
	}
	p.mu.RUnlock()

	status := &driving.IngestionStatus{MaterialID: materialID}
	rec, err := p.tracker.Get(ctx, materialID)
	switch {
	case err == nil:
		status.Record = rec
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get processing record: %w", err)
	}
	return status, nil
}

// List returns the materials of the principal's tenant.
func (p *IngestionPipeline) List(ctx context.Context, principal domain.Principal) ([]domain.Material, error) {
	if principal.TenantID == "" || principal.UserID == "" {
		return nil, fmt.Errorf("%w: principal is incomplete", domain.ErrUnauthorized)
	}
	return p.materials.ListMaterials(ctx, principal.TenantID)
}

func (p *IngestionPipeline) authorized(
	ctx context.Context,
	principal domain.Principal,
	materialID string,
) (*domain.Material, error) {
	material, err := p.materials.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("get material %s: %w", materialID, err)
	}
	if err := p.authz.CanAccessMaterial(ctx, principal, material); err != nil {
		return nil, err
	}
	return material, nil
}

// run chunks, embeds and indexes text for a claimed material.
//
// Windows already dispatched finish even if ctx is cancelled; windows not
// yet dispatched are recorded as failed so the record always settles.
func (p *IngestionPipeline) run(
	ctx context.Context,
	status *driving.IngestionStatus,
	material *domain.Material,
	text string,
) (*driving.IngestionStatus, error) {
	chunks, err := p.chunker.Process(ctx, material, text)
	if err != nil {
		return nil, fmt.Errorf("chunk material %s: %w", material.ID, err)
	}

	// Stale vectors of a previous run must not outlive the new chunking.
	if _, err := p.index.DeleteByMaterial(ctx, material.TenantID, material.ID); err != nil {
		return nil, fmt.Errorf("clear previous vectors: %w", err)
	}

	material.UpdatedAt = p.now()
	if err := p.materials.SaveMaterial(ctx, material); err != nil {
		return nil, fmt.Errorf("save material: %w", err)
	}
	if err := p.materials.SaveChunks(ctx, material.ID, chunks); err != nil {
		return nil, fmt.Errorf("save chunks: %w", err)
	}

	if _, err := p.tracker.Start(ctx, material.ID, len(chunks), p.embedder.ModelName()); err != nil {
		return nil, err
	}
	rec, err := p.tracker.Begin(ctx, material.ID)
	if err != nil {
		return nil, err
	}
	p.setRecord(status, rec)

	p.log.Info("ingesting material %s: %d chunks", material.ID, len(chunks))

	work := context.WithoutCancel(ctx)
	for start := 0; start < len(chunks); start += p.window {
		window := chunks[start:min(start+p.window, len(chunks))]

		if err := ctx.Err(); err != nil {
			remaining := len(chunks) - start
			p.log.Warn("material %s: cancelled with %d chunks undispatched", material.ID, remaining)
			rec, err = p.tracker.Record(work, material.ID, 0, remaining, err)
			if err != nil {
				return nil, err
			}
			p.setRecord(status, rec)
			break
		}

		processed, failed, cause := p.processWindow(work, window)
		rec, err = p.tracker.Record(work, material.ID, processed, failed, cause)
		if err != nil {
			return nil, err
		}
		p.setRecord(status, rec)
	}

	out := copyStatus(status)
	out.Running = false
	return out, nil
}

// processWindow embeds and indexes one window of chunks and returns how
// many reached the index.
func (p *IngestionPipeline) processWindow(ctx context.Context, window []domain.Chunk) (processed, failed int, cause error) {
	texts := make([]string, len(window))
	for i, c := range window {
		texts[i] = c.Content
	}

	embedded, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, len(window), err
	}
	if len(embedded.Failures) > 0 {
		cause = embedded.Failures[0].Err
	}

	records := make([]domain.VectorRecord, 0, len(embedded.Embeddings))
	for _, e := range embedded.Embeddings {
		records = append(records, domain.NewVectorRecord(window[e.Index], e.Vector))
	}
	if len(records) == 0 {
		return 0, len(window), cause
	}

	result, err := p.index.Upsert(ctx, records)
	if result == nil {
		return 0, len(window), err
	}
	if err != nil {
		cause = err
	} else if len(result.Rejected) > 0 || len(result.Failed) > 0 {
		cause = fmt.Errorf("%w: %d records not indexed", domain.ErrProvider, len(result.Rejected)+len(result.Failed))
	}
	return result.Upserted, len(window) - result.Upserted, cause
}

func (p *IngestionPipeline) claim(materialID string) (*driving.IngestionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[materialID]; ok {
		return nil, fmt.Errorf("%w: material %s", domain.ErrIngestionInProgress, materialID)
	}
	status := &driving.IngestionStatus{MaterialID: materialID, Running: true}
	p.active[materialID] = status
	return status, nil
}

func (p *IngestionPipeline) release(materialID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, materialID)
}


func (p *IngestionPipeline) setRecord(status *driving.IngestionStatus, rec *domain.ProcessingRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status.Record = rec
}

// copyStatus must be called with mu held or on an unshared status.
func copyStatus(s *driving.IngestionStatus) *driving.IngestionStatus {
	out := &driving.IngestionStatus{MaterialID: s.MaterialID, Running: s.Running}
	if s.Record != nil {
		rec := *s.Record
		out.Record = &rec
	}
	return out
}
