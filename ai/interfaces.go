package ai

import (
	"context"

	"github.com/poiesic/docvec/core"
)

// Embedder generates vector embeddings from text for semantic similarity
// search, and reports the metered usage of each remote call.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns the vector, the actual usage of the call, and an error if
	// the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, core.Usage, error)

	// EmbedTexts generates vector embeddings for multiple text strings in
	// one remote call. The returned slice contains embeddings in the same
	// order as the input texts and always has the same length; a result of
	// any other shape is an error, never a silent drop.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, core.Usage, error)

	// Dimensions returns the fixed dimensionality of produced vectors.
	// Downstream vector writers rely on this as a hard contract.
	Dimensions() int
}
