package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievalQuery_Validate(t *testing.T) {
	valid := RetrievalQuery{MaterialID: "bio", TenantID: "school-1", Text: "osmosis", TopK: 5}

	tests := []struct {
		name   string
		mutate func(q *RetrievalQuery)
		msg    string
	}{
		{"missing material", func(q *RetrievalQuery) { q.MaterialID = "" }, "material id is required"},
		{"missing tenant", func(q *RetrievalQuery) { q.TenantID = "" }, "tenant id is required"},
		{"missing text", func(q *RetrievalQuery) { q.Text = "" }, "query text is required"},
	}

	assert.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)

			err := q.Validate()

			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestContextWindow_References(t *testing.T) {
	w := ContextWindow{Chunks: []RetrievedChunk{
		{ChunkID: "bio:3", Similarity: 0.9, Score: 1.05},
		{ChunkID: "bio:1", Similarity: 0.7, Score: 0.7},
	}}

	refs := w.References()

	assert.Equal(t, []ContextChunk{
		{ChunkID: "bio:3", Similarity: 0.9},
		{ChunkID: "bio:1", Similarity: 0.7},
	}, refs)
	assert.Empty(t, ContextWindow{}.References())
}
