// Package provider defines the contract for the external embedding and
// completion service and its OpenAI-backed implementation.
//
// The rest of the application depends on the small Client interface; the
// rate limiter is owned by the callers (rag engine, ingest worker) so that
// exactly one admission slot is consumed per outbound call.
package provider

import (
	"context"
	"errors"
)

// Message roles used in completion history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrUnavailable classifies embedding or completion failures (network,
// quota, auth). Callers surface it as a whole-request failure.
var ErrUnavailable = errors.New("model provider unavailable")

// Turn is one prior conversation message included in a completion request.
type Turn struct {
	Role    string
	Content string
}

// CompletionRequest carries everything needed for one completion call.
type CompletionRequest struct {
	System    string // system prompt (empty = none)
	History   []Turn // prior turns, oldest first
	Prompt    string // current user prompt
	MaxTokens int    // response token cap (0 = provider default)
}

// Client is the outbound provider dependency. Implementations must be safe
// for concurrent use.
type Client interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Complete generates a response for the given request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// EstimateTokens approximates the token count of text at ~4 characters per
// token. Used wherever a precomputed count is missing.
func EstimateTokens(text string) int {
	return len(text) / 4
}
