package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/docvault/docvault/internal/provider"
)

// fakeChunkSource serves chunks and document names from memory.
type fakeChunkSource struct {
	chunks map[uuid.UUID][]Chunk
	names  map[uuid.UUID]string
	err    error
}

func (f *fakeChunkSource) ChunksByDocument(_ context.Context, documentID uuid.UUID) ([]Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks[documentID], nil
}

func (f *fakeChunkSource) DocumentName(_ context.Context, documentID uuid.UUID) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	name, ok := f.names[documentID]
	if !ok {
		return "", fmt.Errorf("document %s not found", documentID)
	}
	return name, nil
}

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// countingLimiter records every Acquire and optionally fails.
type countingLimiter struct {
	mu       sync.Mutex
	acquires int
	err      error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.err != nil {
		return l.err
	}
	l.acquires++
	return nil
}

func (l *countingLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires
}

// fakeCompleter replays scripted responses in call order and records every
// request it receives.
type fakeCompleter struct {
	responses []string
	errs      []error
	requests  []provider.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req provider.CompletionRequest) (string, error) {
	call := len(f.requests)
	f.requests = append(f.requests, req)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	return "", fmt.Errorf("unexpected completion call %d", call)
}

// fakeHistory returns a fixed set of turns for every session.
type fakeHistory struct {
	turns []provider.Turn
	err   error
}

func (f *fakeHistory) History(context.Context, uuid.UUID) ([]provider.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

func testChunk(docID uuid.UUID, index int, content string, embedding []float32) Chunk {
	return Chunk{
		ID:         uuid.New(),
		DocumentID: docID,
		Index:      index,
		Content:    content,
		Embedding:  embedding,
	}
}
