// Package rag implements the retrieval-augmented generation core: ranking
// stored chunks against a query by cosine similarity, assembling a
// token-budgeted context with citations, windowing conversation history,
// and orchestrating the full question-answering pipeline over the shared
// provider rate limiter.
//
// All provider traffic (query embeddings, completions, follow-up
// suggestions) passes through one admission slot per call; see the
// ratelimit package.
package rag
