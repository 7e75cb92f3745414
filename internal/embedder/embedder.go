// Package embedder converts text into fixed-length vectors for similarity
// search. The same embedder must be used at ingestion and query time;
// retrieval refuses to query a collection whose stored model identifier
// differs from the active embedder's.
package embedder

import "context"

// Embedder is the interface for converting text into dense vector
// embeddings. Implementations must be safe to call from multiple
// goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the identifier recorded on collections and chunk
	// metadata, used to detect embedding-model drift.
	Model() string
}
