// Package chunker splits extracted document text into overlapping chunks
// sized for embedding and retrieval.
package chunker

import (
	"errors"
	"strings"

	"github.com/docvault/docvault/internal/provider"
	"github.com/docvault/docvault/internal/rag"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators is the split hierarchy, tried in order: paragraphs first,
// then lines, sentence ends, clauses, words, and finally raw characters.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Page is one page of extracted text. Single-page formats (txt, md, docx)
// produce exactly one page.
type Page struct {
	Number  int
	Content string
}

// Splitter produces chunks of at most Size characters with Overlap
// characters carried over between adjacent chunks, preferring semantic
// boundaries over hard cuts.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter. A zero size and a negative overlap take the
// defaults; overlap zero means no overlap.
func New(size, overlap int) (*Splitter, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if size < 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap >= size {
		return nil, errors.New("chunk overlap must be smaller than chunk size")
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split divides text into chunks. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	return s.split(text, separators)
}

// ChunkPages splits each page and assembles rag.Chunks with page numbers,
// character positions, and estimated token counts. Chunk indexes are
// contiguous across the whole document.
func (s *Splitter) ChunkPages(pages []Page) []rag.Chunk {
	var chunks []rag.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Content) == "" {
			continue
		}

		searchFrom := 0
		for _, content := range s.Split(page.Content) {
			start := locate(page.Content, content, searchFrom)
			searchFrom = start + 1

			chunks = append(chunks, rag.Chunk{
				Index:      len(chunks),
				Content:    content,
				PageNumber: page.Number,
				StartChar:  start,
				EndChar:    start + len(content),
				TokenCount: provider.EstimateTokens(content),
			})
		}
	}
	return chunks
}

// locate finds where a chunk starts within its page. Overlapping chunks
// start before the previous chunk's end, so the search resumes just past
// the previous chunk's start.
func locate(page, chunk string, from int) int {
	prefix := chunk
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	if from > len(page) {
		from = len(page)
	}
	if idx := strings.Index(page[from:], prefix); idx >= 0 {
		return from + idx
	}
	if idx := strings.Index(page, prefix); idx >= 0 {
		return idx
	}
	return from
}

func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	// Pick the coarsest separator that actually occurs.
	sep := ""
	var rest []string
	for i, cand := range seps {
		if cand == "" {
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	// Split keeping the separator attached, so every chunk is an exact
	// substring of the input.
	pieces := splitAfter(text, sep)
	var units []string
	for _, p := range pieces {
		if len(p) > s.size {
			units = append(units, s.split(p, rest)...)
		} else {
			units = append(units, p)
		}
	}
	return s.merge(units)
}

// hardCut slices text at fixed strides, the last resort when no separator
// is available. Strides count runes so a cut never lands mid-rune.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.size - s.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// merge greedily packs units into chunks of at most size characters,
// retaining a tail of units up to overlap characters when starting the
// next chunk.
func (s *Splitter) merge(units []string) []string {
	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if total == 0 {
			return
		}
		chunk := strings.Join(window, "")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, u := range units {
		if total > 0 && total+len(u) > s.size {
			flush()
			for len(window) > 0 && (total > s.overlap || total+len(u) > s.size) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, u)
		total += len(u)
	}
	flush()
	return chunks
}

// splitAfter splits text on sep, keeping sep at the end of each piece.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter can leave a trailing empty piece when text ends with sep.
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
