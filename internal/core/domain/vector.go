package domain

import (
	"fmt"
	"math"
)

// DistanceMetric is the similarity measure a vector collection is built with.
type DistanceMetric string

// Supported metrics.
const (
	MetricCosine DistanceMetric = "cosine"
)

// ValidationIssue names one reason an embedding is unusable.
type ValidationIssue string

// Embedding validation issues.
const (
	IssueEmpty            ValidationIssue = "empty vector"
	IssueWrongDimension   ValidationIssue = "wrong dimension"
	IssueNonFinite        ValidationIssue = "non-finite component"
	IssueAllZero          ValidationIssue = "all-zero vector"
	IssueMissingTenant    ValidationIssue = "missing tenant_id"
	IssueMissingMaterial  ValidationIssue = "missing material_id"
	IssueMissingID        ValidationIssue = "missing id"
	IssueInvalidChunkType ValidationIssue = "invalid chunk_type"
)

// ValidationReport is the outcome of validating an embedding or record.
type ValidationReport struct {
	OK     bool
	Issues []ValidationIssue
}

// Err returns nil for a valid report and an ErrValidation otherwise.
func (r ValidationReport) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrValidation, r.Issues)
}

// ValidateEmbedding checks length, finiteness and that v carries signal.
// An all-zero vector signals a provider or validation failure upstream.
func ValidateEmbedding(v []float32, dimension int) ValidationReport {
	var issues []ValidationIssue
	if len(v) == 0 {
		return ValidationReport{Issues: []ValidationIssue{IssueEmpty}}
	}
	if len(v) != dimension {
		issues = append(issues, IssueWrongDimension)
	}

	nonFinite := false
	allZero := true
	for _, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			nonFinite = true
		}
		if f != 0 {
			allZero = false
		}
	}
	if nonFinite {
		issues = append(issues, IssueNonFinite)
	}
	if allZero {
		issues = append(issues, IssueAllZero)
	}

	return ValidationReport{OK: len(issues) == 0, Issues: issues}
}

// CosineSimilarity computes cos(a, b).
// Mismatched dimensions are a validation error; a zero-magnitude
// operand yields 0 ("no signal") rather than an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d != %d", ErrValidation, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// VectorMetadata is the typed metadata stored alongside every vector.
// TenantID and MaterialID are the only fields used for isolation.
type VectorMetadata struct {
	TenantID     string
	MaterialID   string
	Content      string
	ChunkType    ChunkType
	ChunkIndex   int
	PageNumber   *int
	SectionTitle string
	TokenCount   int
	CharCount    int
}

// VectorRecord is the unit stored in the vector index.
type VectorRecord struct {
	// ID is the chunk ID.
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// NewVectorRecord projects a chunk and its embedding into a record.
func NewVectorRecord(chunk Chunk, values []float32) VectorRecord {
	return VectorRecord{
		ID:     chunk.ID,
		Values: values,
		Metadata: VectorMetadata{
			TenantID:     chunk.TenantID,
			MaterialID:   chunk.MaterialID,
			Content:      chunk.Content,
			ChunkType:    chunk.Type,
			ChunkIndex:   chunk.Index,
			PageNumber:   chunk.PageNumber,
			SectionTitle: chunk.SectionTitle,
			TokenCount:   chunk.TokenCount,
			CharCount:    chunk.CharCount,
		},
	}
}

// Validate checks the record identity, isolation tags and embedding.
func (r VectorRecord) Validate(dimension int) ValidationReport {
	report := ValidateEmbedding(r.Values, dimension)
	issues := report.Issues
	if r.ID == "" {
		issues = append(issues, IssueMissingID)
	}
	if r.Metadata.TenantID == "" {
		issues = append(issues, IssueMissingTenant)
	}
	if r.Metadata.MaterialID == "" {
		issues = append(issues, IssueMissingMaterial)
	}
	if r.Metadata.ChunkType != "" && !r.Metadata.ChunkType.IsValid() {
		issues = append(issues, IssueInvalidChunkType)
	}
	return ValidationReport{OK: len(issues) == 0, Issues: issues}
}

// VectorFilter is an equality filter over metadata fields.
// Empty fields are not constrained.
type VectorFilter struct {
	TenantID   string
	MaterialID string
	ChunkType  ChunkType
}

// IsEmpty returns true if the filter constrains nothing.
func (f VectorFilter) IsEmpty() bool {
	return f.TenantID == "" && f.MaterialID == "" && f.ChunkType == ""
}

// Matches reports whether metadata satisfies every set field.
func (f VectorFilter) Matches(m VectorMetadata) bool {
	if f.TenantID != "" && m.TenantID != f.TenantID {
		return false
	}
	if f.MaterialID != "" && m.MaterialID != f.MaterialID {
		return false
	}
	if f.ChunkType != "" && m.ChunkType != f.ChunkType {
		return false
	}
	return true
}

// VectorMatch is one ranked query result.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata VectorMetadata
}

// IndexState is the lifecycle state of the vector index.
type IndexState string

// Index states.
const (
	IndexUninitialized IndexState = "uninitialized"
	IndexReady         IndexState = "ready"
	IndexFatal         IndexState = "fatal"
	IndexClosed        IndexState = "closed"
)

// IndexStats reports index health for observability.
type IndexStats struct {
	Collection  string
	Dimension   int
	Metric      DistanceMetric
	RecordCount int64
	State       IndexState
}

// UpsertResult summarises an index upsert.
type UpsertResult struct {
	// Upserted is the number of records accepted by the provider.
	Upserted int

	// Rejected maps record IDs that failed validation to their issues.
	Rejected map[string][]ValidationIssue

	// Failed lists record IDs whose batch failed at the provider.
	Failed []string
}

// FailedIDs returns every record ID that did not reach the index.
func (r *UpsertResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Rejected)+len(r.Failed))
	for id := range r.Rejected {
		ids = append(ids, id)
	}
	return append(ids, r.Failed...)
}

// Candidate is a vector considered by an in-process top-k ranking.
type Candidate struct {
	ID     string
	Vector []float32
}

// ScoredCandidate is a ranked Candidate.
type ScoredCandidate struct {
	ID         string
	Similarity float64
}
