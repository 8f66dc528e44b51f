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


package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docvec/core"
)

// Ceilings bounds per-file resource consumption during extraction. Inputs
// past a ceiling are truncated, not rejected; the result is annotated as
// truncated.
type Ceilings struct {
	// MaxBytes caps how much of the input stream is read.
	MaxBytes int64
	// MaxPages caps page-structured formats.
	MaxPages int
	// MaxRows caps row-structured formats.
	MaxRows int
	// ReleaseEvery is the number of structural units (pages, rows) after
	// which a decoder must release its working buffers, bounding peak
	// memory on large inputs.
	ReleaseEvery int
}

// DefaultCeilings returns the standard extraction bounds.
func DefaultCeilings() Ceilings {
	return Ceilings{
		MaxBytes:     50 << 20,
		MaxPages:     1000,
		MaxRows:      100_000,
		ReleaseEvery: 50,
	}
}

// Decoder turns a byte stream of one content type into ExtractedContent.
// Implementations must honor the ceilings and release working memory before
// returning.
type Decoder interface {
	// Method identifies the extraction strategy, recorded on the result so
	// downstream consumers can tell which decoder in a fallback chain
	// produced it.
	Method() string

	Decode(r io.Reader, ceilings Ceilings) (core.ExtractedContent, error)
}

// Dispatcher routes files to decoders by declared content type. Each content
// type maps to an ordered fallback chain: decoders are tried in sequence
// until one succeeds. The dispatcher never lets a decoder failure escape; an
// unrecoverable failure yields an error-kind ExtractedContent.
type Dispatcher struct {
	chains   map[string][]Decoder
	ceilings Ceilings
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the built-in text and CSV decoder
// chains registered.
func NewDispatcher(ceilings Ceilings) *Dispatcher {
	d := &Dispatcher{
		chains:   make(map[string][]Decoder),
		ceilings: ceilings,
		logger:   slog.Default().With("component", "extract-dispatcher"),
	}
	d.Register("text/plain", NewTextDecoder())
	d.Register("text/markdown", NewTextDecoder())
	d.Register("text/csv", NewCSVDecoder(), NewTextDecoder())
	return d
}

// Ceilings returns the bounds this dispatcher enforces.
func (d *Dispatcher) Ceilings() Ceilings {
	return d.ceilings
}

// Register maps a content type to an ordered decoder fallback chain,
// replacing any existing chain for that type.
func (d *Dispatcher) Register(contentType string, chain ...Decoder) {
	d.chains[contentType] = chain
}

// Extract decodes the stream according to its declared content type. It
// always returns a well-formed ExtractedContent: unrecognized types and
// decoder failures come back as kind Error, never as a raised failure.
func (d *Dispatcher) Extract(ctx context.Context, contentType string, r io.Reader) core.ExtractedContent {
	if err := ctx.Err(); err != nil {
		return core.ErrorContent(err.Error())
	}

	chain, ok := d.chains[contentType]
	if !ok || len(chain) == 0 {
		d.logger.Warn("no decoder for content type", "contentType", contentType)
		return core.ErrorContent(fmt.Sprintf("unsupported type: %s", contentType))
	}

	// Bound the read regardless of decoder. One extra byte distinguishes
	// "exactly at the ceiling" from "past it".
	limited := &cappedReader{r: io.LimitReader(r, d.ceilings.MaxBytes+1), max: d.ceilings.MaxBytes}

	var lastErr error
	for _, decoder := range chain {
		content, err := d.decodeSafely(decoder, limited)
		if err == nil {
			if limited.truncated {
				content.Truncated = true
			}
			return content
		}
		lastErr = err
		d.logger.Debug("decoder failed, trying fallback",
			"contentType", contentType, "method", decoder.Method(), "err", err)

		if !limited.rewind() {
			// Stream already consumed and not replayable; no further
			// fallback is possible.
			break
		}
	}

	d.logger.Error("extraction failed", "contentType", contentType, "err", lastErr)
	return core.ErrorContent(lastErr.Error())
}

// cappedReader buffers what it reads so a fallback decoder can replay the
// stream, and remembers whether the byte ceiling was hit.
type cappedReader struct {
	r         io.Reader
	max       int64
	buf       []byte
	pos       int
	total     int64
	truncated bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.pos < len(c.buf) {
		n := copy(p, c.buf[c.pos:])
		c.pos += n
		return n, nil
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		if c.total > c.max {
			// Drop the sentinel byte past the ceiling.
			over := c.total - c.max
			n -= int(over)
			c.total = c.max
			c.truncated = true
			if n < 0 {
				n = 0
			}
			err = io.EOF
		}
		c.buf = append(c.buf, p[:n]...)
		c.pos = len(c.buf)
	}
	return n, err
}

// rewind repositions the reader at the start of everything read so far.
func (c *cappedReader) rewind() bool {
	c.pos = 0
	return true
}

// decodeSafely invokes a decoder, converting a panic into an error so no
// handler failure escapes the dispatch boundary.
func (d *Dispatcher) decodeSafely(decoder Decoder, r io.Reader) (content core.ExtractedContent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decoder %s panicked: %v", decoder.Method(), rec)
		}
	}()
	return decoder.Decode(r, d.ceilings)
}
