package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driving.VectorIndexService = (*VectorIndex)(nil)

// VectorIndexConfig describes the collection the index manages.
type VectorIndexConfig struct {
	// Collection is the environment-keyed collection name.
	Collection string

	// Dimension is the fixed vector size.
	Dimension int

	// Metric is the distance metric used when creating the collection.
	Metric domain.DistanceMetric

	// BatchSize is the number of records per provider upsert.
	BatchSize int

	// Concurrency is the number of upsert batches in flight.
	Concurrency int

	// Timeout bounds every provider call.
	Timeout time.Duration
}

// VectorIndexConfigFrom maps settings to a VectorIndexConfig.
func VectorIndexConfigFrom(idx domain.IndexSettings, dimension int) VectorIndexConfig {
	return VectorIndexConfig{
		Collection:  idx.CollectionName(),
		Dimension:   dimension,
		Metric:      domain.MetricCosine,
		BatchSize:   idx.BatchSize,
		Concurrency: 1,
		Timeout:     idx.Timeout,
	}
}

// VectorIndex owns the lifecycle of one vector collection and gates every
// operation on it being READY. It holds the only process-wide provider
// handle and is safe for concurrent use.
type VectorIndex struct {
	provider driven.VectorStoreProvider
	cfg      VectorIndexConfig
	log      logger.Logger

	mu       sync.RWMutex
	state    domain.IndexState
	fatalErr error
}

// NewVectorIndex creates an UNINITIALIZED index. No I/O happens until
// Initialize is called.
func NewVectorIndex(provider driven.VectorStoreProvider, cfg VectorIndexConfig) *VectorIndex {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.MetricCosine
	}
	return &VectorIndex{
		provider: provider,
		cfg:      cfg,
		log:      logger.With("index"),
		state:    domain.IndexUninitialized,
	}
}

// Initialize creates the collection if it is missing, otherwise verifies
// its declared dimension. It is idempotent once READY. A dimension
// mismatch is fatal: the index refuses all further work until an operator
// deletes the collection or configures a different name.
func (x *VectorIndex) Initialize(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	switch x.state {
	case domain.IndexReady:
		return nil
	case domain.IndexFatal:
		return x.fatalErr
	case domain.IndexClosed:
		return fmt.Errorf("%w: index has been shut down", domain.ErrIndexNotReady)
	}

	if x.cfg.Collection == "" || x.cfg.Dimension <= 0 {
		return fmt.Errorf("%w: collection name and positive dimension are required", domain.ErrValidation)
	}

	spec, err := x.describe(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		x.log.Info("creating collection %s (dimension %d, %s)", x.cfg.Collection, x.cfg.Dimension, x.cfg.Metric)
		err = x.create(ctx)
		if errors.Is(err, domain.ErrAlreadyExists) {
			spec, err = x.describe(ctx)
		} else if err == nil {
			spec = &driven.CollectionSpec{Name: x.cfg.Collection, Dimension: x.cfg.Dimension, Metric: x.cfg.Metric}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: initialize %s: %w", domain.ErrProvider, x.cfg.Collection, err)
	}

	if spec.Dimension != x.cfg.Dimension {
		x.state = domain.IndexFatal
		x.fatalErr = fmt.Errorf(
			"%w: collection %s has dimension %d but embeddings have dimension %d; "+
				"delete the collection so it can be recreated, or configure a different collection name",
			domain.ErrIndex, x.cfg.Collection, spec.Dimension, x.cfg.Dimension)
		x.log.Error("%v", x.fatalErr)
		return x.fatalErr
	}

	x.state = domain.IndexReady
	x.log.Info("collection %s ready", x.cfg.Collection)
	return nil
}

func (x *VectorIndex) describe(ctx context.Context) (*driven.CollectionSpec, error) {
	callCtx, cancel := x.withTimeout(ctx)
	defer cancel()
	return x.provider.DescribeCollection(callCtx, x.cfg.Collection)
}

func (x *VectorIndex) create(ctx context.Context) error {
	callCtx, cancel := x.withTimeout(ctx)
	defer cancel()
	return x.provider.CreateCollection(callCtx, driven.CollectionSpec{
		Name:      x.cfg.Collection,
		Dimension: x.cfg.Dimension,
		Metric:    x.cfg.Metric,
	})
}

// State returns the lifecycle state.
func (x *VectorIndex) State() domain.IndexState {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state
}

// requireReady returns an error unless the index is READY.
// Callers must not hold x.mu.
func (x *VectorIndex) requireReady() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	switch x.state {
	case domain.IndexReady:
		return nil
	case domain.IndexFatal:
		return x.fatalErr
	default:
		return fmt.Errorf("%w: index is %s", domain.ErrIndexNotReady, x.state)
	}
}

// Upsert validates records and writes the valid ones in batches.
// Invalid records are reported in Rejected and never sent. A batch the
// provider refuses is reported in Failed; later batches still run.
func (x *VectorIndex) Upsert(ctx context.Context, records []domain.VectorRecord) (*domain.UpsertResult, error) {
	if err := x.requireReady(); err != nil {
		return nil, err
	}

	result := &domain.UpsertResult{Rejected: make(map[string][]domain.ValidationIssue)}
	valid := make([]domain.VectorRecord, 0, len(records))
	for i, r := range records {
		report := r.Validate(x.cfg.Dimension)
		if !report.OK {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			result.Rejected[id] = report.Issues
			x.log.Warn("rejected record %s: %v", id, report.Issues)
			continue
		}
		valid = append(valid, r)
	}

	var (
		mu       sync.Mutex
		upserted int
		failed   []string
		ctxErr   error
	)
	var eg errgroup.Group
	eg.SetLimit(x.cfg.Concurrency)

	for start := 0; start < len(valid); start += x.cfg.BatchSize {
		batch := valid[start:min(start+x.cfg.BatchSize, len(valid))]

		if err := ctx.Err(); err != nil {
			mu.Lock()
			failed = append(failed, recordIDs(batch)...)
			ctxErr = err
			mu.Unlock()
			continue
		}

		eg.Go(func() error {
			callCtx, cancel := x.withTimeout(ctx)
			defer cancel()

			err := x.provider.Upsert(callCtx, x.cfg.Collection, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				x.log.Warn("upsert batch of %d failed: %v", len(batch), err)
				failed = append(failed, recordIDs(batch)...)
				return nil
			}
			upserted += len(batch)
			return nil
		})
	}
	_ = eg.Wait()

	result.Upserted = upserted
	result.Failed = failed
	if ctxErr != nil {
		return result, fmt.Errorf("%w: upsert interrupted: %w", domain.ErrProvider, ctxErr)
	}
	return result, nil
}

func recordIDs(records []domain.VectorRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// Query returns up to topK records nearest to vector that satisfy filter.
// The filter must name a tenant. Results are re-checked against the
// filter so a provider that ignores it can never leak other materials.
func (x *VectorIndex) Query(ctx context.Context, vector []float32, filter domain.VectorFilter, topK int) ([]domain.VectorMatch, error) {
	if err := x.requireReady(); err != nil {
		return nil, err
	}
	if filter.TenantID == "" {
		return nil, fmt.Errorf("%w: query filter must include tenant_id", domain.ErrValidation)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", domain.ErrValidation)
	}
	if len(vector) != x.cfg.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d",
			domain.ErrValidation, len(vector), x.cfg.Dimension)
	}

	callCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	matches, err := x.provider.Query(callCtx, x.cfg.Collection, driven.VectorQuery{
		Vector: vector,
		Filter: filter,
		TopK:   topK,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrProvider, err)
	}

	out := make([]domain.VectorMatch, 0, len(matches))
	for _, m := range matches {
		if !filter.Matches(m.Metadata) {
			x.log.Warn("provider returned %s outside filter; dropped", m.ID)
			continue
		}
		out = append(out, m)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// DeleteByMaterial removes every record of a material within a tenant.
func (x *VectorIndex) DeleteByMaterial(ctx context.Context, tenantID, materialID string) (int, error) {
	if err := x.requireReady(); err != nil {
		return 0, err
	}
	if tenantID == "" || materialID == "" {
		return 0, fmt.Errorf("%w: tenant id and material id are required", domain.ErrValidation)
	}

	callCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	n, err := x.provider.Delete(callCtx, x.cfg.Collection, domain.VectorFilter{
		TenantID:   tenantID,
		MaterialID: materialID,
	})
	if err != nil {
		return n, fmt.Errorf("%w: delete material %s: %w", domain.ErrProvider, materialID, err)
	}
	x.log.Debug("deleted %d vectors of material %s", n, materialID)
	return n, nil
}

// Stats reports record counts when READY and the bare lifecycle state
// otherwise.
func (x *VectorIndex) Stats(ctx context.Context) (*domain.IndexStats, error) {
	state := x.State()
	stats := &domain.IndexStats{
		Collection: x.cfg.Collection,
		Dimension:  x.cfg.Dimension,
		Metric:     x.cfg.Metric,
		State:      state,
	}
	if state != domain.IndexReady {
		return stats, nil
	}

	callCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	remote, err := x.provider.DescribeStats(callCtx, x.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %w", domain.ErrProvider, err)
	}
	stats.RecordCount = remote.RecordCount
	return stats, nil
}

// Shutdown releases the provider handle. The index cannot be used again.
func (x *VectorIndex) Shutdown(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.state == domain.IndexClosed {
		return nil
	}
	x.state = domain.IndexClosed
	if err := x.provider.Close(); err != nil {
		return fmt.Errorf("close vector store: %w", err)
	}
	return nil
}

func (x *VectorIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if x.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, x.cfg.Timeout)
}
