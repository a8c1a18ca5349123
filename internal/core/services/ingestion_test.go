package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/authz"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	vectormemory "github.com/custodia-labs/lectern/internal/adapters/driven/vectorstore/memory"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/normalisers"
	"github.com/custodia-labs/lectern/internal/postprocessors"
)

const (
	paraPlants   = "Plants make food from sunlight."
	paraOsmosis  = "Osmosis moves water across membranes."
	paraVolcanos = "Volcanoes erupt molten rock."
)

var (
	teacher  = domain.Principal{UserID: "teacher-1", TenantID: "school-1"}
	outsider = domain.Principal{UserID: "teacher-9", TenantID: "school-9"}
)

func threeParagraphs() []byte {
	return []byte(paraPlants + "\n\n" + paraOsmosis + "\n\n" + paraVolcanos)
}

type ingestionFixture struct {
	provider  *mockEmbeddingProvider
	index     *VectorIndex
	materials *memory.MaterialStore
	blobs     *memory.BlobStore
	tracker   *ProcessingTracker
	embedder  *EmbeddingGenerator
	pipeline  *IngestionPipeline
	engine    *RetrievalEngine
}

func newIngestionFixture(t *testing.T, provider driven.EmbeddingProvider, opts ...IngestionOption) *ingestionFixture {
	t.Helper()
	mock, _ := provider.(*mockEmbeddingProvider)
	embedder := NewEmbeddingGenerator(provider, nil, EmbeddingConfig{
		Dimension: 3, BatchSize: 1, MaxTokensPerRequest: 100, Timeout: time.Second,
	})
	index := newReadyIndex(t, vectormemory.New(), 10)
	materials := memory.NewMaterialStore()
	blobs := memory.NewBlobStore()
	tracker := NewProcessingTracker(memory.NewProcessingStore())
	authorizer := authz.NewTenantAuthorizer()

	return &ingestionFixture{
		provider:  mock,
		index:     index,
		materials: materials,
		blobs:     blobs,
		tracker:   tracker,
		embedder:  embedder,
		pipeline: NewIngestionPipeline(materials, blobs, postprocessors.DefaultPipeline(40, 0),
			embedder, index, tracker, authorizer, opts...),
		engine: NewRetrievalEngine(embedder, index, materials, authorizer),
	}
}

func (f *ingestionFixture) vectorCount(t *testing.T) int64 {
	t.Helper()
	stats, err := f.index.Stats(context.Background())
	require.NoError(t, err)
	return stats.RecordCount
}

func TestIngestionPipeline_EndToEnd_RanksRelevantChunk(t *testing.T) {
	provider := newMockEmbeddingProvider(3)
	provider.vectors[paraPlants] = []float32{1, 0, 0}
	provider.vectors[paraOsmosis] = []float32{0, 1, 0}
	provider.vectors[paraVolcanos] = []float32{0, 0, 1}
	provider.vectors["what is osmosis?"] = []float32{0.1, 1, 0.1}
	f := newIngestionFixture(t, provider)
	ctx := context.Background()

	status, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, status.Record.Status)

	chunks, err := f.engine.Search(ctx, teacher, "bio", "what is osmosis?", 3)

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, paraOsmosis, chunks[0].Metadata.Content)
	assert.Greater(t, chunks[0].Similarity, chunks[1].Similarity)
	assert.Greater(t, chunks[0].Similarity, chunks[2].Similarity)
}

func TestIngestionPipeline_Ingest_CompletesRecord(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()

	status, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{
		MaterialID: "bio", Title: "Biology", ContentType: "text/plain", Content: threeParagraphs(),
	})

	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, domain.StatusCompleted, status.Record.Status)
	assert.Equal(t, 3, status.Record.TotalChunks)
	assert.Equal(t, 3, status.Record.ProcessedChunks)
	assert.Equal(t, "mock-embed", status.Record.EmbeddingModel)
	assert.Equal(t, int64(3), f.vectorCount(t))

	material, err := f.materials.GetMaterial(ctx, "bio")
	require.NoError(t, err)
	assert.Equal(t, "school-1", material.TenantID)
	assert.Equal(t, "school-1/bio", material.BlobKey)

	stored, err := f.materials.GetChunks(ctx, "bio")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, c := range stored {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, domain.ChunkTypeParagraph, c.Type)
		assert.Positive(t, c.TokenCount)
	}

	blob, err := f.blobs.Get(ctx, "school-1/bio")
	require.NoError(t, err)
	assert.Equal(t, threeParagraphs(), blob)
}

func TestIngestionPipeline_Ingest_GeneratesMaterialID(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))

	status, err := f.pipeline.Ingest(context.Background(), teacher, driving.IngestRequest{Content: []byte(paraPlants)})

	require.NoError(t, err)
	assert.NotEmpty(t, status.MaterialID)
	assert.Equal(t, domain.StatusCompleted, status.Record.Status)
}

func TestIngestionPipeline_Ingest_PartialFailureEndsFailed(t *testing.T) {
	provider := newMockEmbeddingProvider(3)
	provider.failOn[paraOsmosis] = true
	f := newIngestionFixture(t, provider)

	status, err := f.pipeline.Ingest(context.Background(), teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status.Record.Status)
	assert.Equal(t, 2, status.Record.ProcessedChunks)
	assert.Equal(t, 1, status.Record.FailedChunks)
	assert.NotEmpty(t, status.Record.LastError)
	assert.Equal(t, int64(2), f.vectorCount(t))
}

func TestIngestionPipeline_Ingest_Validation(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{Content: []byte{0xff, 0xfe}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.pipeline.Ingest(ctx, domain.Principal{UserID: "u"}, driving.IngestRequest{Content: []byte("text")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Zero(t, f.provider.calls)
}

func TestIngestionPipeline_Ingest_NormalisesByContentType(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3), WithNormalisers(normalisers.DefaultRegistry()))
	ctx := context.Background()
	page := []byte("<html><head><title>Biology</title></head><body>" +
		"<p>" + paraPlants + "</p><p>" + paraOsmosis + "</p><p>" + paraVolcanos + "</p></body></html>")

	status, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{
		MaterialID: "bio", ContentType: "text/html; charset=utf-8", Content: page,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, status.Record.TotalChunks)
	material, err := f.materials.GetMaterial(ctx, "bio")
	require.NoError(t, err)
	assert.Equal(t, "Biology", material.Title)
	stored, err := f.materials.GetChunks(ctx, "bio")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, paraOsmosis, stored[1].Content)

	blob, err := f.blobs.Get(ctx, "school-1/bio")
	require.NoError(t, err)
	assert.Equal(t, page, blob)

	status, err = f.pipeline.Reprocess(ctx, teacher, "bio")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Record.TotalChunks)

	_, err = f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{ContentType: "image/png", Content: []byte{0x89, 'P'}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestionPipeline_Ingest_ForeignMaterialIsUnauthorized(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)

	_, err = f.pipeline.Ingest(ctx, outsider, driving.IngestRequest{MaterialID: "bio", Content: []byte("overwrite")})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int64(3), f.vectorCount(t))
}

func TestIngestionPipeline_Reingest_RemovesStaleVectors(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)

	status, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: []byte(paraPlants)})

	require.NoError(t, err)
	assert.Equal(t, 1, status.Record.TotalChunks)
	assert.Equal(t, int64(1), f.vectorCount(t))
}

func TestIngestionPipeline_Reprocess(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)

	status, err := f.pipeline.Reprocess(ctx, teacher, "bio")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status.Record.Status)
	assert.Equal(t, int64(3), f.vectorCount(t), "deterministic chunk ids overwrite rather than duplicate")

	_, err = f.pipeline.Reprocess(ctx, outsider, "bio")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.pipeline.Reprocess(ctx, teacher, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestionPipeline_Delete_CascadesEverything(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "geo", Content: []byte(paraVolcanos)})
	require.NoError(t, err)

	assert.ErrorIs(t, f.pipeline.Delete(ctx, outsider, "bio"), domain.ErrUnauthorized)
	require.NoError(t, f.pipeline.Delete(ctx, teacher, "bio"))

	assert.Equal(t, int64(1), f.vectorCount(t))
	_, err = f.materials.GetMaterial(ctx, "bio")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.tracker.Get(ctx, "bio")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.blobs.Get(ctx, "school-1/bio")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := f.engine.Search(ctx, teacher, "geo", "volcano", 5)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestIngestionPipeline_Status(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)

	status, err := f.pipeline.Status(ctx, teacher, "bio")

	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, domain.StatusCompleted, status.Record.Status)

	_, err = f.pipeline.Status(ctx, outsider, "bio")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestIngestionPipeline_List(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: []byte(paraPlants)})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, outsider, driving.IngestRequest{MaterialID: "other", Content: []byte(paraPlants)})
	require.NoError(t, err)

	materials, err := f.pipeline.List(ctx, teacher)

	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "bio", materials[0].ID)
}

// cancellingProvider cancels the ingestion context during the first batch.
type cancellingProvider struct {
	*mockEmbeddingProvider
	cancel context.CancelFunc
}

func (c *cancellingProvider) EmbedBatch(ctx context.Context, texts []string) (*driven.ProviderBatchEmbedding, error) {
	c.cancel()
	return c.mockEmbeddingProvider.EmbedBatch(ctx, texts)
}

func TestIngestionPipeline_CancelCountsUndispatchedAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := &cancellingProvider{mockEmbeddingProvider: newMockEmbeddingProvider(3), cancel: cancel}
	f := newIngestionFixture(t, provider, WithIngestionWindow(1))

	status, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status.Record.Status)
	assert.Equal(t, 1, status.Record.ProcessedChunks)
	assert.Equal(t, 2, status.Record.FailedChunks)
	assert.Contains(t, status.Record.LastError, context.Canceled.Error())
	assert.Equal(t, int64(1), f.vectorCount(t))
}

// blockingProvider holds the first batch until released.
type blockingProvider struct {
	*mockEmbeddingProvider
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingProvider) EmbedBatch(ctx context.Context, texts []string) (*driven.ProviderBatchEmbedding, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.mockEmbeddingProvider.EmbedBatch(ctx, texts)
}

func TestIngestionPipeline_ConcurrentIngestIsRefused(t *testing.T) {
	provider := &blockingProvider{
		mockEmbeddingProvider: newMockEmbeddingProvider(3),
		started:               make(chan struct{}),
		release:               make(chan struct{}),
	}
	f := newIngestionFixture(t, provider)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
		done <- err
	}()
	<-provider.started

	status, err := f.pipeline.Status(ctx, teacher, "bio")
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, domain.StatusProcessing, status.Record.Status)

	_, err = f.pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	assert.ErrorIs(t, f.pipeline.Delete(ctx, teacher, "bio"), domain.ErrIngestionInProgress)

	close(provider.release)
	require.NoError(t, <-done)

	status, err = f.pipeline.Status(ctx, teacher, "bio")
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, domain.StatusCompleted, status.Record.Status)
}

// blockingBlobs holds every Delete until release is closed.
type blockingBlobs struct {
	*memory.BlobStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBlobs) Delete(ctx context.Context, key string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.BlobStore.Delete(ctx, key)
}

func TestIngestionPipeline_DeleteHoldsMaterial(t *testing.T) {
	f := newIngestionFixture(t, newMockEmbeddingProvider(3))
	ctx := context.Background()
	blobs := &blockingBlobs{
		BlobStore: f.blobs,
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	pipeline := NewIngestionPipeline(f.materials, blobs, postprocessors.DefaultPipeline(40, 0),
		f.embedder, f.index, f.tracker, authz.NewTenantAuthorizer())
	_, err := pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Delete(ctx, teacher, "bio")
	}()
	<-blobs.started

	status, err := pipeline.Status(ctx, teacher, "bio")
	require.NoError(t, err)
	assert.True(t, status.Running)

	_, err = pipeline.Ingest(ctx, teacher, driving.IngestRequest{MaterialID: "bio", Content: threeParagraphs()})
	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	_, err = pipeline.Reprocess(ctx, teacher, "bio")
	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	assert.ErrorIs(t, pipeline.Delete(ctx, teacher, "bio"), domain.ErrIngestionInProgress)

	close(blobs.release)
	require.NoError(t, <-done)

	assert.Equal(t, int64(0), f.vectorCount(t))
	_, err = f.materials.GetMaterial(ctx, "bio")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = pipeline.Reprocess(ctx, teacher, "bio")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
