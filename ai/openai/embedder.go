package openai

import (
	"context"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	encoder    *tiktoken.Tiktoken
	dimensions int
	costPerTok float64
	logger     *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't
	// require authentication.
	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	// cl100k_base is the encoding used by the text-embedding-3 family.
	// Token counts feed the usage accounting; if the encoding is
	// unavailable the embedder falls back to a length heuristic.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Default().Warn("tiktoken encoding unavailable, using length heuristic", "err", err)
		encoder = nil
	}

	return &Embedder{
		embedder:   embedder,
		encoder:    encoder,
		dimensions: config.Dimensions,
		costPerTok: config.CostPerMillionTokens / 1_000_000,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, core.Usage, error) {
	vectors, usage, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, core.Usage{}, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, usage, nil
	}
	return vectors[0], usage, nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// The returned usage reflects the tokens consumed by the whole batch and the
// metered cost at the configured model price.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, core.Usage, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, core.Usage{}, err
	}

	tokens := 0
	for _, text := range texts {
		tokens += e.CountTokens(text)
	}
	usage := core.Usage{
		Tokens: tokens,
		Cost:   float64(tokens) * e.costPerTok,
	}

	return vectors, usage, nil
}

// CountTokens returns the token count of text under the model's encoding.
// Falls back to a bytes/4 heuristic when the encoding could not be loaded.
func (e *Embedder) CountTokens(text string) int {
	if e.encoder == nil {
		return len(text) / 4
	}
	return len(e.encoder.Encode(text, nil, nil))
}

// Dimensions returns the vector dimensionality of the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
