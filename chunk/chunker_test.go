package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct rebuilds the original text from chunk bodies by stripping each
// body's overlap prefix.
func reconstruct(bodies []string, overlap int) string {
	var sb strings.Builder
	prevBaseLen := 0
	for i, body := range bodies {
		strip := 0
		if i > 0 {
			strip = overlap
			if prevBaseLen < overlap {
				strip = prevBaseLen
			}
		}
		runes := []rune(body)
		sb.WriteString(string(runes[strip:]))
		prevBaseLen = len(runes) - strip
	}
	return sb.String()
}

// patternText builds deterministic, non-repeating text of n characters with
// no separator characters, forcing character-level splitting.
func patternText(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 'a' + byte((i*7+i/26)%26)
	}
	return string(buf)
}

func TestNewChunker(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		c, err := NewChunker(400, 50)
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("zero size", func(t *testing.T) {
		_, err := NewChunker(0, 0)
		assert.ErrorIs(t, err, ErrInvalidChunkSize)
	})

	t.Run("negative overlap", func(t *testing.T) {
		_, err := NewChunker(400, -1)
		assert.ErrorIs(t, err, ErrInvalidOverlap)
	})

	t.Run("overlap not smaller than size", func(t *testing.T) {
		_, err := NewChunker(100, 100)
		assert.ErrorIs(t, err, ErrInvalidOverlap)
	})
}

func TestSplitTextEdgeCases(t *testing.T) {
	c, err := NewChunker(400, 50)
	require.NoError(t, err)

	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Empty(t, c.SplitText(""))
	})

	t.Run("short input yields one chunk without overlap", func(t *testing.T) {
		bodies := c.SplitText("hello world")
		require.Len(t, bodies, 1)
		assert.Equal(t, "hello world", bodies[0])
	})

	t.Run("input exactly chunk size yields one chunk", func(t *testing.T) {
		text := patternText(400)
		bodies := c.SplitText(text)
		require.Len(t, bodies, 1)
		assert.Equal(t, text, bodies[0])
	})
}

func TestSplitTextCharacterLevel(t *testing.T) {
	c, err := NewChunker(400, 50)
	require.NoError(t, err)

	text := patternText(900)
	bodies := c.SplitText(text)

	require.Len(t, bodies, 3)

	// Second chunk opens with the tail of the first.
	first := []rune(bodies[0])
	second := []rune(bodies[1])
	assert.Equal(t, string(first[len(first)-50:]), string(second[:50]))

	// Stripping overlap reconstructs the input exactly.
	assert.Equal(t, text, reconstruct(bodies, 50))
}

func TestSplitTextPrefersCoarseBoundaries(t *testing.T) {
	c, err := NewChunker(120, 20)
	require.NoError(t, err)

	para1 := strings.Repeat("x", 100)
	para2 := strings.Repeat("y", 100)
	text := para1 + "\n\n" + para2

	bodies := c.SplitText(text)
	require.Len(t, bodies, 2)

	// First chunk ends at the paragraph break, second starts with overlap
	// carried over from it.
	assert.True(t, strings.HasSuffix(bodies[0], "\n\n"))
	assert.True(t, strings.HasSuffix(bodies[1], para2))
	assert.Equal(t, text, reconstruct(bodies, 20))
}

func TestSplitTextSentenceBoundaries(t *testing.T) {
	c, err := NewChunker(80, 10)
	require.NoError(t, err)

	var sentences []string
	for i := 0; i < 8; i++ {
		sentences = append(sentences, strings.Repeat(string(rune('a'+i)), 30))
	}
	text := strings.Join(sentences, ". ")

	bodies := c.SplitText(text)
	require.Greater(t, len(bodies), 1)

	for i, body := range bodies {
		// Size bound: base piece within chunk size, plus at most the
		// overlap prefix.
		limit := 80
		if i > 0 {
			limit += 10
		}
		assert.LessOrEqual(t, len([]rune(body)), limit, "chunk %d too large", i)
	}
	assert.Equal(t, text, reconstruct(bodies, 10))
}

func TestSplitTextMixedSeparators(t *testing.T) {
	c, err := NewChunker(60, 12)
	require.NoError(t, err)

	text := "First paragraph with several words in it.\n\n" +
		"Second paragraph. It has two sentences that run long enough to split.\n" +
		"A trailing line without a period at all " +
		strings.Repeat("verylongword", 12)

	bodies := c.SplitText(text)
	require.NotEmpty(t, bodies)
	assert.Equal(t, text, reconstruct(bodies, 12))
}

func TestSplitTextUnicode(t *testing.T) {
	c, err := NewChunker(10, 3)
	require.NoError(t, err)

	text := strings.Repeat("héllo wörld ", 5)
	bodies := c.SplitText(text)
	require.NotEmpty(t, bodies)

	for _, body := range bodies {
		assert.True(t, strings.ToValidUTF8(body, "") == body, "chunk contains invalid UTF-8")
	}
	assert.Equal(t, text, reconstruct(bodies, 3))
}

func TestSplitAssignsMetadata(t *testing.T) {
	c, err := NewChunker(400, 50)
	require.NoError(t, err)

	chunks := c.Split("file-1", patternText(900))
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, "file-1", chunk.FileID)
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, 3, chunk.Total)
		assert.NotEmpty(t, chunk.Text)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := NewChunker(400, 50)
	require.NoError(t, err)

	assert.Nil(t, c.Split("file-1", ""))
}

func TestSplitDeterministic(t *testing.T) {
	c, err := NewChunker(100, 15)
	require.NoError(t, err)

	text := patternText(537)
	first := c.SplitText(text)
	second := c.SplitText(text)
	assert.Equal(t, first, second)
}
