package search_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docvec/ai/mock"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/search"
	"github.com/poiesic/docvec/storage/badger"
)

const testDim = 8

func seedVectors(t *testing.T) (*search.Searcher, *mock.MockEmbedder) {
	t.Helper()

	_, vectors, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder(testDim)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("document chunk about topic %d", i)
		vec, _, err := embedder.EmbedText(ctx, text)
		require.NoError(t, err)
		require.NoError(t, vectors.UpsertVectors(ctx, &core.VectorRecord{
			FileID:      "file-1",
			Title:       "Doc",
			ChunkIndex:  i,
			TotalChunks: 5,
			Method:      "text",
			Text:        text,
			Vector:      vec,
		}))
	}

	searcher, err := search.NewSearcher(vectors, embedder)
	require.NoError(t, err)
	return searcher, embedder
}

func TestNewSearcherValidation(t *testing.T) {
	_, err := search.NewSearcher(nil, mock.NewMockEmbedder(testDim))
	assert.ErrorIs(t, err, search.ErrVectorRepositoryRequired)

	_, vectors, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	defer backend.Close()

	_, err = search.NewSearcher(vectors, nil)
	assert.ErrorIs(t, err, search.ErrEmbedderRequired)
}

func TestFindSimilarRanksExactMatchFirst(t *testing.T) {
	searcher, _ := seedVectors(t)

	// The mock embedder is deterministic, so the exact stored text embeds
	// to an identical vector and must rank first.
	results, err := searcher.FindSimilar(context.Background(), "document chunk about topic 3", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, 3, results[0].Record.ChunkIndex)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must be ranked")
	}
}

func TestFindSimilarRespectsLimit(t *testing.T) {
	searcher, _ := seedVectors(t)

	results, err := searcher.FindSimilar(context.Background(), "any question", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestFindSimilarEmptyQuery(t *testing.T) {
	searcher, _ := seedVectors(t)

	_, err := searcher.FindSimilar(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, search.ErrEmptyQuery)
}
