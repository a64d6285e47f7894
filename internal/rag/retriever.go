package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Retriever ranks a document's chunks by relevance to a query.
//
// Retrieval is a linear cosine scan over the document's stored embeddings.
// This is fine for the document sizes we ingest; very large corpora would
// need an ANN index behind the same interface.
type Retriever struct {
	chunks   ChunkSource
	embedder Embedder
	limiter  Limiter
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. logger may be nil.
func NewRetriever(chunks ChunkSource, embedder Embedder, limiter Limiter, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		chunks:   chunks,
		embedder: embedder,
		limiter:  limiter,
		logger:   logger,
	}
}

// Retrieve returns the top k chunks of documentID ranked by cosine
// similarity to query, excluding chunks scoring below threshold.
// A document with no chunks, or with every chunk below threshold, yields an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, documentID uuid.UUID, query string, k int, threshold float64) ([]RetrievedChunk, error) {
	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.rank(ctx, documentID, queryVec, k, threshold)
}

// RetrieveMulti retrieves up to kPerDoc chunks from each document and
// merges the results into one globally ranked list. The query is embedded
// once and reused across documents, so only one provider call is made
// regardless of document count.
func (r *Retriever) RetrieveMulti(ctx context.Context, documentIDs []uuid.UUID, query string, kPerDoc int, threshold float64) ([]RetrievedChunk, error) {
	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var merged []RetrievedChunk
	for _, docID := range documentIDs {
		results, err := r.rank(ctx, docID, queryVec, kPerDoc, threshold)
		if err != nil {
			return nil, err
		}
		merged = append(merged, results...)
	}

	sortByScore(merged)
	return merged, nil
}

// embedQuery acquires a rate-limit slot and embeds the query text.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

// rank loads a document's chunks and scores them against queryVec.
// Chunks without an embedding, or whose embedding dimensionality does not
// match the query's, are skipped rather than scored as zero.
func (r *Retriever) rank(ctx context.Context, documentID uuid.UUID, queryVec []float32, k int, threshold float64) ([]RetrievedChunk, error) {
	chunks, err := r.chunks.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for document %s: %w", documentID, err)
	}

	scored := make([]RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			r.logger.Debug("skipping chunk without embedding",
				"chunk_id", chunk.ID, "document_id", documentID)
			continue
		}
		if len(chunk.Embedding) != len(queryVec) {
			r.logger.Debug("skipping chunk with mismatched embedding dimension",
				"chunk_id", chunk.ID,
				"chunk_dim", len(chunk.Embedding),
				"query_dim", len(queryVec))
			continue
		}

		score := cosineSimilarity(queryVec, chunk.Embedding)
		if score < threshold {
			continue
		}
		scored = append(scored, RetrievedChunk{Chunk: chunk, Score: score})
	}

	sortByScore(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	r.logger.Debug("retrieved chunks",
		"document_id", documentID,
		"candidates", len(chunks),
		"returned", len(scored))
	return scored, nil
}

// sortByScore orders results by descending similarity; equal scores keep
// the lower chunk index first for determinism.
func sortByScore(results []RetrievedChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
