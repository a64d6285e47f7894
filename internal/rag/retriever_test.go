package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetriever(chunks *fakeChunkSource, embedder *fakeEmbedder) (*Retriever, *countingLimiter) {
	limiter := &countingLimiter{}
	return NewRetriever(chunks, embedder, limiter, nil), limiter
}

func TestRetrieveRanksByDescendingScore(t *testing.T) {
	docID := uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 0, "weak match", []float32{1, 1}),        // cos ≈ 0.707
			testChunk(docID, 1, "exact match", []float32{1, 0}),       // cos = 1
			testChunk(docID, 2, "medium match", []float32{2, 0.5}),    // cos ≈ 0.970
			testChunk(docID, 3, "irrelevant", []float32{0, 1}),        // cos = 0
			testChunk(docID, 4, "negative match", []float32{-1, 0.1}), // cos < 0
		},
	}}
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	retriever, limiter := newTestRetriever(source, embedder)

	results, err := retriever.Retrieve(context.Background(), docID, "query", 5, 0.0)
	require.NoError(t, err)
	// The negative-similarity chunk falls below the 0.0 threshold.
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score,
			"results must be sorted by descending score")
	}
	assert.Equal(t, "exact match", results[0].Chunk.Content)
	assert.Equal(t, 1, limiter.count(), "retrieval embeds the query exactly once")
	assert.Equal(t, 1, embedder.calls)
}

func TestRetrieveEqualScoresKeepChunkOrder(t *testing.T) {
	docID := uuid.New()
	// Same embedding, so identical scores; order must follow chunk index.
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 2, "third", []float32{1, 0}),
			testChunk(docID, 0, "first", []float32{1, 0}),
			testChunk(docID, 1, "second", []float32{1, 0}),
		},
	}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.Retrieve(context.Background(), docID, "query", 3, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "first", results[0].Chunk.Content)
	assert.Equal(t, "second", results[1].Chunk.Content)
	assert.Equal(t, "third", results[2].Chunk.Content)
}

func TestRetrieveThresholdExcludesLowScores(t *testing.T) {
	docID := uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 0, "strong", []float32{1, 0}),
			testChunk(docID, 1, "weak", []float32{1, 1}), // ≈ 0.707
			testChunk(docID, 2, "none", []float32{0, 1}),
		},
	}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.Retrieve(context.Background(), docID, "query", 5, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "strong", results[0].Chunk.Content)
}

func TestRetrieveTopKTruncation(t *testing.T) {
	docID := uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 0, "a", []float32{1, 0}),
			testChunk(docID, 1, "b", []float32{1, 0.1}),
			testChunk(docID, 2, "c", []float32{1, 0.2}),
			testChunk(docID, 3, "d", []float32{1, 0.3}),
		},
	}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.Retrieve(context.Background(), docID, "query", 2, 0.0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieveSkipsUnusableEmbeddings(t *testing.T) {
	docID := uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 0, "no embedding", nil),
			testChunk(docID, 1, "wrong dimension", []float32{1, 0, 0}),
			testChunk(docID, 2, "usable", []float32{1, 0}),
		},
	}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.Retrieve(context.Background(), docID, "query", 5, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "usable", results[0].Chunk.Content)
}

func TestRetrieveEmptyDocument(t *testing.T) {
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.Retrieve(context.Background(), uuid.New(), "query", 5, 0.7)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	retriever, _ := newTestRetriever(&fakeChunkSource{}, &fakeEmbedder{err: errors.New("boom")})

	_, err := retriever.Retrieve(context.Background(), uuid.New(), "query", 5, 0.7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")
}

func TestRetrieveRateLimitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	retriever, _ := newTestRetriever(&fakeChunkSource{}, embedder)

	_, err := retriever.Retrieve(ctx, uuid.New(), "query", 5, 0.7)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, embedder.calls, "embedding must not run after a failed acquire")
}

func TestRetrieveMultiEmbedsOnceAndMergesGlobally(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docA: {
			testChunk(docA, 0, "a-strong", []float32{1, 0}),
			testChunk(docA, 1, "a-weak", []float32{1, 1}),
		},
		docB: {
			testChunk(docB, 0, "b-medium", []float32{2, 0.5}),
		},
	}}
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	retriever, limiter := newTestRetriever(source, embedder)

	results, err := retriever.RetrieveMulti(context.Background(), []uuid.UUID{docA, docB}, "query", 2, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a-strong", results[0].Chunk.Content)
	assert.Equal(t, "b-medium", results[1].Chunk.Content)
	assert.Equal(t, "a-weak", results[2].Chunk.Content)

	assert.Equal(t, 1, embedder.calls, "multi-document retrieval embeds the query once")
	assert.Equal(t, 1, limiter.count())
}

func TestRetrieveMultiPerDocumentLimit(t *testing.T) {
	docID := uuid.New()
	source := &fakeChunkSource{chunks: map[uuid.UUID][]Chunk{
		docID: {
			testChunk(docID, 0, "a", []float32{1, 0}),
			testChunk(docID, 1, "b", []float32{1, 0.1}),
			testChunk(docID, 2, "c", []float32{1, 0.2}),
		},
	}}
	retriever, _ := newTestRetriever(source, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := retriever.RetrieveMulti(context.Background(), []uuid.UUID{docID}, "query", 1, 0.0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
