package rag

import (
	"fmt"
	"strings"

	"github.com/docvault/docvault/internal/provider"
)

// BuildContext turns a ranked chunk list into a prompt context string and a
// parallel citation list, greedily accumulating chunks in rank order until
// adding one would exceed maxTokens. Chunks are never partially included;
// once a chunk does not fit, accumulation stops even if a later, smaller
// chunk would have fit.
//
// An empty input, or a budget smaller than the first chunk, yields an empty
// context and no citations. Callers treat that as "no relevant
// information", not as an error.
func BuildContext(chunks []RetrievedChunk, maxTokens int) (string, []Citation) {
	var parts []string
	var citations []Citation
	currentTokens := 0

	for _, rc := range chunks {
		tokens := chunkTokens(rc.Chunk)
		if currentTokens+tokens > maxTokens {
			break
		}

		pageRef := ""
		if rc.Chunk.PageNumber > 0 {
			pageRef = fmt.Sprintf(" (Page %d)", rc.Chunk.PageNumber)
		}
		parts = append(parts, fmt.Sprintf("[Source %d%s]:\n%s", len(citations)+1, pageRef, rc.Chunk.Content))

		citations = append(citations, Citation{
			ChunkID:        rc.Chunk.ID,
			ContentSnippet: Snippet(rc.Chunk.Content),
			PageNumber:     rc.Chunk.PageNumber,
			RelevanceScore: rc.Score,
		})
		currentTokens += tokens
	}

	return strings.Join(parts, "\n\n"), citations
}

// BuildMultiContext is the multi-document variant of BuildContext: blocks
// are labeled with the owning document's name instead of a source ordinal,
// and citations carry the document identity.
func BuildMultiContext(chunks []RetrievedChunk, documentNames map[string]string, maxTokens int) (string, []Citation) {
	var parts []string
	var citations []Citation
	currentTokens := 0

	for _, rc := range chunks {
		tokens := chunkTokens(rc.Chunk)
		if currentTokens+tokens > maxTokens {
			break
		}

		name := documentNames[rc.Chunk.DocumentID.String()]
		pageRef := ""
		if rc.Chunk.PageNumber > 0 {
			pageRef = fmt.Sprintf(", Page %d", rc.Chunk.PageNumber)
		}
		parts = append(parts, fmt.Sprintf("[From: %s%s]:\n%s", name, pageRef, rc.Chunk.Content))

		citations = append(citations, Citation{
			ChunkID:        rc.Chunk.ID,
			DocumentID:     rc.Chunk.DocumentID,
			DocumentName:   name,
			ContentSnippet: Snippet(rc.Chunk.Content),
			PageNumber:     rc.Chunk.PageNumber,
			RelevanceScore: rc.Score,
		})
		currentTokens += tokens
	}

	return strings.Join(parts, "\n\n"), citations
}

// Snippet truncates content to SnippetLength characters, appending an
// ellipsis marker only when truncation happened. The cut counts runes, not
// bytes, so multibyte content stays valid UTF-8.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= SnippetLength {
		return content
	}
	return string(runes[:SnippetLength]) + "..."
}

// chunkTokens returns the chunk's precomputed token count, falling back to
// a length-based estimate.
func chunkTokens(c Chunk) int {
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return provider.EstimateTokens(c.Content)
}
