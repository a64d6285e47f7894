package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Defaults and limits for the answer pipeline. Request values outside the
// documented ranges are rejected by Engine.
const (
	// SnippetLength is the citation preview length in characters.
	SnippetLength = 200

	// MultiDocumentChunkCap bounds the chunks entering context assembly in
	// the multi-document path, regardless of document count.
	MultiDocumentChunkCap = 10

	// MaxSuggestions caps the follow-up questions returned per answer.
	MaxSuggestions = 3

	DefaultTopK                = 5
	DefaultTopKPerDocument     = 3
	DefaultSimilarityThreshold = 0.7
	DefaultContextWindow       = 5
	DefaultMaxResponseTokens   = 1000
	DefaultMaxContextTokens    = 4000
)

// Chunk is the immutable unit of retrievable text. Chunks are created in
// bulk during ingestion and read-only inside the RAG core.
type Chunk struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	Index          int // zero-based ordinal, contiguous within a document
	Content        string
	PageNumber     int // 0 = unknown
	StartChar      int
	EndChar        int
	TokenCount     int       // 0 = not precomputed, estimate on use
	Embedding      []float32 // nil = not embedded, skipped during retrieval
	EmbeddingModel string
	CreatedAt      time.Time
}

// RetrievedChunk pairs a chunk with its similarity score for one query.
// Never persisted.
type RetrievedChunk struct {
	Chunk Chunk
	Score float64 // cosine similarity, [-1, 1]
}

// Citation is the user-facing projection of a retrieved chunk embedded in
// an assistant message.
type Citation struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	DocumentID     uuid.UUID `json:"document_id,omitzero"`
	DocumentName   string    `json:"document_name,omitempty"`
	ContentSnippet string    `json:"content_snippet"`
	PageNumber     int       `json:"page_number,omitempty"`
	RelevanceScore float64   `json:"relevance_score"`
}

// ChunkSource provides chunk and document lookups. Implemented by
// store.Store; defined here so the core depends on an abstraction.
type ChunkSource interface {
	// ChunksByDocument returns all chunks of a document ordered by Index.
	ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]Chunk, error)

	// DocumentName returns the display name of a document.
	DocumentName(ctx context.Context, documentID uuid.UUID) (string, error)
}

// Limiter grants admission slots for outbound provider calls.
// Implemented by ratelimit.Limiter.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Embedder generates an embedding vector for a query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
