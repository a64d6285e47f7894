// Package ingest runs the document processing pipeline: chunk extracted
// text, embed the chunks in batches, and persist them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docvault/docvault/internal/chunker"
	"github.com/docvault/docvault/internal/rag"
	"github.com/docvault/docvault/internal/store"
)

// embedBatchSize is how many chunk texts are embedded per provider call.
const embedBatchSize = 100

// Store is the persistence surface the processor needs.
type Store interface {
	SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errMessage string) error
	SetDocumentReady(ctx context.Context, documentID uuid.UUID, chunkCount, pageCount int) error
	InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []rag.Chunk) error
}

// Embedder generates embeddings for a batch of texts, one vector per input
// in the same order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Limiter grants admission slots for outbound provider calls.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Processor drives a document through the ingestion lifecycle:
// pending → processing → ready, or failed with the error recorded.
type Processor struct {
	store    Store
	embedder Embedder
	limiter  Limiter
	splitter *chunker.Splitter
	model    string
	logger   *slog.Logger
}

// New creates a Processor. model names the embedding model recorded on
// each chunk.
func New(st Store, embedder Embedder, limiter Limiter, splitter *chunker.Splitter, model string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    st,
		embedder: embedder,
		limiter:  limiter,
		splitter: splitter,
		model:    model,
		logger:   logger,
	}
}

// Process chunks and embeds a document's pages, stores the chunks, and
// marks the document ready. Any failure marks the document failed with the
// error recorded, and is also returned.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID, pages []chunker.Page) (int, error) {
	if err := p.store.SetDocumentStatus(ctx, documentID, store.StatusProcessing, ""); err != nil {
		return 0, fmt.Errorf("marking document processing: %w", err)
	}

	count, err := p.process(ctx, documentID, pages)
	if err != nil {
		if statusErr := p.store.SetDocumentStatus(ctx, documentID, store.StatusFailed, err.Error()); statusErr != nil {
			p.logger.Error("recording ingestion failure",
				"document_id", documentID, "error", statusErr)
		}
		return 0, err
	}

	if err := p.store.SetDocumentReady(ctx, documentID, count, len(pages)); err != nil {
		return 0, fmt.Errorf("marking document ready: %w", err)
	}

	p.logger.Info("document processed",
		"document_id", documentID, "pages", len(pages), "chunks", count)
	return count, nil
}

func (p *Processor) process(ctx context.Context, documentID uuid.UUID, pages []chunker.Page) (int, error) {
	chunks := p.splitter.ChunkPages(pages)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s contains no extractable text", documentID)
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}

	for i := range chunks {
		chunks[i].ID = uuid.New()
		chunks[i].DocumentID = documentID
		chunks[i].EmbeddingModel = p.model
	}

	if err := p.store.InsertChunks(ctx, documentID, chunks); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}
	return len(chunks), nil
}

// embedChunks fills in embeddings batch by batch. Each batch is one
// provider call and acquires one rate-limit slot.
func (p *Processor) embedChunks(ctx context.Context, chunks []rag.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		if err := p.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedding batch %d-%d: got %d vectors for %d texts",
				start, end, len(vectors), len(texts))
		}

		for i, vec := range vectors {
			chunks[start+i].Embedding = vec
		}

		p.logger.Debug("embedded chunk batch", "from", start, "to", end)
	}
	return nil
}

// supportedExtensions maps file extensions to MIME content types. Only
// plain-text formats are extracted natively.
var supportedExtensions = map[string]string{
	".txt": "text/plain",
	".md":  "text/markdown",
}

// ExtractFile reads a plain-text document from disk as a single page.
// Returns the pages and the detected content type.
func ExtractFile(path string) ([]chunker.Page, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := supportedExtensions[ext]
	if !ok {
		return nil, "", fmt.Errorf("unsupported file type %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, "", fmt.Errorf("%s is empty", path)
	}

	return []chunker.Page{{Number: 1, Content: string(data)}}, contentType, nil
}
