// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chunk

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docvec/core"
)

// Default segmentation parameters tuned for retrieval-sized chunks.
const (
	DefaultChunkSize = 400
	DefaultOverlap   = 50
)

// separators is the boundary hierarchy tried coarse to fine: paragraph
// break, line break, sentence boundary, word boundary, and finally
// character-level splitting when nothing else keeps a piece in bounds.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("overlap must be non-negative and smaller than chunk size")
)

// Chunker splits document text into ordered, overlapping segments.
// It holds no hidden state: the same input always yields the same chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker producing segments of at most size runes,
// with up to overlap runes carried over from the tail of each preceding
// segment.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split segments text into chunks for the given file, assigning contiguous
// zero-based indices. Empty input yields no chunks. Input no longer than the
// chunk size yields exactly one chunk with no overlap applied.
func (c *Chunker) Split(fileID, text string) []core.Chunk {
	bodies := c.SplitText(text)
	if len(bodies) == 0 {
		return nil
	}
	chunks := make([]core.Chunk, len(bodies))
	for i, body := range bodies {
		chunks[i] = core.Chunk{
			FileID: fileID,
			Index:  i,
			Total:  len(bodies),
			Text:   body,
		}
	}
	return chunks
}

// SplitText segments text into chunk bodies. Concatenating the bodies with
// each body's overlap prefix removed reconstructs the input exactly.
func (c *Chunker) SplitText(text string) []string {
	if text == "" {
		return nil
	}

	pieces := c.split(text, separators)

	// Prepend the tail of each preceding piece so consecutive chunks share
	// context across the boundary. The prefix is at most c.overlap runes and
	// never reaches past the true start of the preceding piece.
	bodies := make([]string, len(pieces))
	bodies[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		bodies[i] = runeTail(pieces[i-1], c.overlap) + pieces[i]
	}
	return bodies
}

// split recursively divides text into pieces of at most c.size runes using
// the separator hierarchy. The concatenation of the returned pieces is
// exactly the input: separators stay attached to the piece they terminate.
func (c *Chunker) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}
	if len(seps) == 0 || seps[0] == "" {
		return c.splitRunes(text)
	}

	parts := splitKeep(text, seps[0])
	var pieces []string
	var pending strings.Builder
	pendingLen := 0

	flush := func() {
		if pendingLen > 0 {
			pieces = append(pieces, pending.String())
			pending.Reset()
			pendingLen = 0
		}
	}

	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if n > c.size {
			// Oversized even in isolation: descend to the next finer
			// separator, but only for this piece.
			flush()
			pieces = append(pieces, c.split(part, seps[1:])...)
			continue
		}
		if pendingLen+n > c.size {
			flush()
		}
		pending.WriteString(part)
		pendingLen += n
	}
	flush()
	return pieces
}

// splitRunes is the last-resort character-level split into fixed windows,
// always on rune boundaries.
func (c *Chunker) splitRunes(text string) []string {
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+c.size-1)/c.size)
	for start := 0; start < len(runes); start += c.size {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// splitKeep splits text on sep, keeping the separator attached to the
// preceding part so no characters are lost.
func splitKeep(text, sep string) []string {
	var parts []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			if text != "" {
				parts = append(parts, text)
			}
			return parts
		}
		parts = append(parts, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
}

// runeTail returns the last n runes of s, or all of s if shorter.
func runeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
