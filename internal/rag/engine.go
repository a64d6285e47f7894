package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docvault/docvault/internal/provider"
)

// Sentinel errors for request contract violations. Ranges match the
// configuration surface validated by callers; the engine enforces them as
// contracts.
var (
	ErrQuestionEmpty         = errors.New("question must not be empty")
	ErrNoDocuments           = errors.New("at least one document is required")
	ErrInvalidChunkCount     = errors.New("context chunk count must be between 1 and 20")
	ErrInvalidThreshold      = errors.New("similarity threshold must be between 0.0 and 1.0")
	ErrInvalidResponseTokens = errors.New("max response tokens must be between 100 and 4000")
	ErrInvalidContextWindow  = errors.New("context window must be between 1 and 20")
)

// Completer issues completion calls to the model provider.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (string, error)
}

// HistorySource loads a session's conversation turns, oldest first.
// Implemented by store.Store.
type HistorySource interface {
	History(ctx context.Context, sessionID uuid.UUID) ([]provider.Turn, error)
}

// AnswerRequest describes one question against a single document session.
// Zero values take documented defaults; out-of-range values are rejected.
type AnswerRequest struct {
	SessionID           uuid.UUID
	DocumentID          uuid.UUID
	Question            string
	NumChunks           int     // 0 = DefaultTopK, else 1–20
	SimilarityThreshold float64 // 0.0–1.0
	IncludeCitations    bool
	IncludeSuggestions  bool
	MaxResponseTokens   int // 0 = DefaultMaxResponseTokens, else 100–4000
	ContextWindow       int // 0 = DefaultContextWindow, else 1–20
}

// Answer is the complete result of one question-answering transaction.
type Answer struct {
	Text             string
	Citations        []Citation
	Suggestions      []string
	ContextUsed      int // chunks that survived the context budget cut
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ModelUsed        string
	ResponseTime     time.Duration
}

// MultiAnswerRequest describes one question across several documents.
type MultiAnswerRequest struct {
	DocumentIDs         []uuid.UUID
	Question            string
	ChunksPerDocument   int     // 0 = DefaultTopKPerDocument, else 1–20
	SimilarityThreshold float64 // 0.0–1.0
	MaxResponseTokens   int     // 0 = DefaultMaxResponseTokens, else 100–4000
}

// MultiAnswer is the result of a multi-document question.
type MultiAnswer struct {
	Text          string
	Citations     []Citation
	DocumentsUsed []uuid.UUID // documents that contributed at least one chunk
	ResponseTime  time.Duration
}

// EngineConfig contains required parameters for Engine.
type EngineConfig struct {
	Retriever *Retriever
	Chunks    ChunkSource
	Provider  Completer
	Limiter   Limiter
	History   HistorySource
	Logger    *slog.Logger

	ModelName        string // reported in results
	MaxContextTokens int    // token budget for assembled context (0 = default)
	Retry            RetryConfig
}

func (cfg EngineConfig) validate() error {
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Chunks == nil {
		return errors.New("chunk source is required")
	}
	if cfg.Provider == nil {
		return errors.New("provider is required")
	}
	if cfg.Limiter == nil {
		return errors.New("rate limiter is required")
	}
	if cfg.History == nil {
		return errors.New("history source is required")
	}
	return nil
}

// Engine composes retrieval, context assembly, history windowing, and the
// rate-limited provider into a question-answering pipeline. Engine is
// stateless across requests and safe for concurrent use.
type Engine struct {
	retriever *Retriever
	chunks    ChunkSource
	provider  Completer
	limiter   Limiter
	history   HistorySource
	logger    *slog.Logger

	modelName        string
	maxContextTokens int
	retry            RetryConfig
}

// NewEngine creates an Engine from the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxContextTokens := cfg.MaxContextTokens
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	return &Engine{
		retriever:        cfg.Retriever,
		chunks:           cfg.Chunks,
		provider:         cfg.Provider,
		limiter:          cfg.Limiter,
		history:          cfg.History,
		logger:           logger,
		modelName:        cfg.ModelName,
		maxContextTokens: maxContextTokens,
		retry:            retry,
	}, nil
}

// Answer produces a complete answer to a question within a chat session:
// retrieve relevant chunks, assemble the budgeted context, window the
// session history, generate the response, and optionally generate
// follow-up suggestions.
//
// Retrieval or generation failures fail the whole operation; suggestion
// failures never do.
func (e *Engine) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	if err := normalizeAnswerRequest(&req); err != nil {
		return nil, err
	}
	start := time.Now()

	retrieved, err := e.retriever.Retrieve(ctx, req.DocumentID, req.Question, req.NumChunks, req.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}

	contextText, citations := BuildContext(retrieved, e.maxContextTokens)

	turns, err := e.history.History(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	window := WindowHistory(turns, req.ContextWindow)

	userPrompt := qaUserPrompt(contextText, req.Question)
	answerText, err := e.completeWithRetry(ctx, provider.CompletionRequest{
		System:    qaSystem(req.IncludeCitations),
		History:   window,
		Prompt:    userPrompt,
		MaxTokens: req.MaxResponseTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	var suggestions []string
	if req.IncludeSuggestions && contextText != "" {
		suggestions = e.generateSuggestions(ctx, contextText, req.Question, answerText)
	}

	promptTokens := provider.EstimateTokens(contextText + req.Question)
	completionTokens := provider.EstimateTokens(answerText)

	result := &Answer{
		Text:             answerText,
		Suggestions:      suggestions,
		ContextUsed:      len(citations),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		ModelUsed:        e.modelName,
		ResponseTime:     time.Since(start),
	}
	if req.IncludeCitations {
		result.Citations = citations
	}

	e.logger.Debug("answered question",
		"session_id", req.SessionID,
		"context_used", result.ContextUsed,
		"suggestions", len(suggestions),
		"response_time", result.ResponseTime)
	return result, nil
}

// AnswerMulti answers a question across several documents. Chunks are
// merged and globally ranked before context assembly, capped at
// MultiDocumentChunkCap regardless of document count.
func (e *Engine) AnswerMulti(ctx context.Context, req MultiAnswerRequest) (*MultiAnswer, error) {
	if err := normalizeMultiRequest(&req); err != nil {
		return nil, err
	}
	start := time.Now()

	merged, err := e.retriever.RetrieveMulti(ctx, req.DocumentIDs, req.Question, req.ChunksPerDocument, req.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}
	if len(merged) > MultiDocumentChunkCap {
		merged = merged[:MultiDocumentChunkCap]
	}

	names, err := e.documentNames(ctx, merged)
	if err != nil {
		return nil, err
	}
	contextText, citations := BuildMultiContext(merged, names, e.maxContextTokens)

	answerText, err := e.completeWithRetry(ctx, provider.CompletionRequest{
		System:    multiDocSystemPrompt,
		Prompt:    multiDocUserPrompt(contextText, req.Question),
		MaxTokens: req.MaxResponseTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	result := &MultiAnswer{
		Text:          answerText,
		Citations:     citations,
		DocumentsUsed: documentsUsed(citations),
		ResponseTime:  time.Since(start),
	}

	e.logger.Debug("answered multi-document question",
		"documents", len(req.DocumentIDs),
		"documents_used", len(result.DocumentsUsed),
		"context_used", len(citations),
		"response_time", result.ResponseTime)
	return result, nil
}

// Usage note: suggestion generation is best-effort. Any failure (rate-limit
// cancellation, provider error, unparseable output) is logged and yields an
// empty list; it never fails the answer.
func (e *Engine) generateSuggestions(ctx context.Context, contextText, question, answer string) []string {
	if err := e.limiter.Acquire(ctx); err != nil {
		e.logger.Debug("suggestion generation skipped", "error", err)
		return nil
	}

	raw, err := e.provider.Complete(ctx, provider.CompletionRequest{
		System: suggestionSystemPrompt,
		Prompt: suggestionUserPrompt(contextText, question, answer),
	})
	if err != nil {
		e.logger.Debug("suggestion generation failed", "error", err)
		return nil
	}

	suggestions, err := parseSuggestions(raw)
	if err != nil {
		e.logger.Debug("suggestion output not parseable", "error", err)
		return nil
	}
	return suggestions
}

// parseSuggestions extracts a JSON string array from model output,
// tolerating surrounding markdown code fences.
func parseSuggestions(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var suggestions []string
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		return nil, fmt.Errorf("parsing suggestion list: %w", err)
	}
	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	return suggestions, nil
}

// documentNames resolves the display name of each distinct document among
// the retrieved chunks.
func (e *Engine) documentNames(ctx context.Context, chunks []RetrievedChunk) (map[string]string, error) {
	names := make(map[string]string)
	for _, rc := range chunks {
		key := rc.Chunk.DocumentID.String()
		if _, ok := names[key]; ok {
			continue
		}
		name, err := e.chunks.DocumentName(ctx, rc.Chunk.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolving document name %s: %w", rc.Chunk.DocumentID, err)
		}
		names[key] = name
	}
	return names, nil
}

// documentsUsed lists the distinct documents behind the included citations,
// ordered by first appearance.
func documentsUsed(citations []Citation) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(citations))
	var used []uuid.UUID
	for _, c := range citations {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		used = append(used, c.DocumentID)
	}
	return used
}

func normalizeAnswerRequest(req *AnswerRequest) error {
	if strings.TrimSpace(req.Question) == "" {
		return ErrQuestionEmpty
	}
	if req.NumChunks == 0 {
		req.NumChunks = DefaultTopK
	}
	if req.NumChunks < 1 || req.NumChunks > 20 {
		return ErrInvalidChunkCount
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}
	if req.MaxResponseTokens == 0 {
		req.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if req.MaxResponseTokens < 100 || req.MaxResponseTokens > 4000 {
		return ErrInvalidResponseTokens
	}
	if req.ContextWindow == 0 {
		req.ContextWindow = DefaultContextWindow
	}
	if req.ContextWindow < 1 || req.ContextWindow > 20 {
		return ErrInvalidContextWindow
	}
	return nil
}

func normalizeMultiRequest(req *MultiAnswerRequest) error {
	if strings.TrimSpace(req.Question) == "" {
		return ErrQuestionEmpty
	}
	if len(req.DocumentIDs) == 0 {
		return ErrNoDocuments
	}
	if req.ChunksPerDocument == 0 {
		req.ChunksPerDocument = DefaultTopKPerDocument
	}
	if req.ChunksPerDocument < 1 || req.ChunksPerDocument > 20 {
		return ErrInvalidChunkCount
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}
	if req.MaxResponseTokens == 0 {
		req.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if req.MaxResponseTokens < 100 || req.MaxResponseTokens > 4000 {
		return ErrInvalidResponseTokens
	}
	return nil
}
