package domain

import "time"

// EmbeddingResult is a single embedded text.
type EmbeddingResult struct {
	Vector         []float32
	TokenCount     int
	ProcessingTime time.Duration
}

// BatchEmbedding is one successful item of a batch, tagged with the
// position of its text in the original input.
type BatchEmbedding struct {
	Index          int
	Vector         []float32
	TokenCount     int
	ProcessingTime time.Duration
}

// BatchFailure records a sub-batch that failed as a whole.
// Start is inclusive and End exclusive, in input positions.
type BatchFailure struct {
	Start int
	End   int
	Err   error
}

// Size returns the number of inputs covered by the failed sub-batch.
func (f BatchFailure) Size() int {
	return f.End - f.Start
}

// BatchEmbeddingResult summarises a batch embedding run.
// Embeddings are sorted by Index.
type BatchEmbeddingResult struct {
	Embeddings   []BatchEmbedding
	TotalTokens  int
	SuccessCount int
	FailureCount int
	Failures     []BatchFailure
}
