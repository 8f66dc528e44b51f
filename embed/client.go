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


package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/govern"
)

// Default client parameters.
const (
	DefaultBatchSize      = 100
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultMaxWaitCycles  = 5
)

// Options tunes the batch client. Zero values fall back to the defaults.
type Options struct {
	// BatchSize is the maximum number of chunks per remote call.
	BatchSize int
	// MaxRetries bounds attempts per remote call on transient failure.
	MaxRetries int
	// RetryBaseDelay is the starting backoff delay, doubling per attempt.
	RetryBaseDelay time.Duration
	// MaxWaitCycles bounds how many governor Wait suggestions the client
	// honors per batch before surfacing ErrRateLimited.
	MaxWaitCycles int
	// CostPerMillionTokens prices estimated tokens for reservations.
	CostPerMillionTokens float64
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.MaxWaitCycles <= 0 {
		o.MaxWaitCycles = DefaultMaxWaitCycles
	}
}

// Client feeds chunk batches through the governor into the embedding
// service. Every admitted call is retried with exponential backoff on
// transient failure; actual usage is recorded with the governor only after
// success.
type Client struct {
	embedder  ai.Embedder
	governor  *govern.Governor
	estimator *TokenEstimator
	opts      Options
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewClient creates a batch embedding client. The estimator may be shared
// across clients; pass nil to build one internally.
func NewClient(embedder ai.Embedder, governor *govern.Governor, estimator *TokenEstimator, opts Options) *Client {
	opts.applyDefaults()
	if estimator == nil {
		estimator = NewTokenEstimator()
	}
	return &Client{
		embedder:  embedder,
		governor:  governor,
		estimator: estimator,
		opts:      opts,
		sleep:     sleepCtx,
		logger:    slog.Default().With("component", "embed-client"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EmbedChunks embeds an arbitrary number of chunks, splitting them into
// batches of at most BatchSize. The returned vectors align one-to-one with
// the input chunks, in order.
func (c *Client) EmbedChunks(ctx context.Context, chunks []core.Chunk) ([][]float32, core.Usage, error) {
	vectors := make([][]float32, 0, len(chunks))
	var usage core.Usage

	for start := 0; start < len(chunks); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batchVectors, batchUsage, err := c.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, usage, err
		}
		vectors = append(vectors, batchVectors...)
		usage.Add(batchUsage)
	}
	return vectors, usage, nil
}

// EmbedBatch embeds a single batch of at most BatchSize chunks. The returned
// vector sequence has exactly one entry per chunk, in input order; a chunk is
// never silently dropped.
//
// Errors: ErrEmptyBatch, ErrBatchTooLarge and core.ErrInvalidChunk for
// malformed input (checked before any remote call),
// ErrCostCeilingExceeded when the governor rejects (no remote call is made),
// ErrRateLimited when the wait budget runs out, and a wrapped remote error
// when all retry attempts fail.
func (c *Client) EmbedBatch(ctx context.Context, chunks []core.Chunk) ([][]float32, core.Usage, error) {
	if len(chunks) == 0 {
		return nil, core.Usage{}, ErrEmptyBatch
	}
	if len(chunks) > c.opts.BatchSize {
		return nil, core.Usage{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(chunks), c.opts.BatchSize)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		if err := core.ValidateChunk(&chunk); err != nil {
			return nil, core.Usage{}, err
		}
		texts[i] = chunk.Text
	}

	estTokens := c.estimator.EstimateAll(texts)
	estCost := float64(estTokens) * c.opts.CostPerMillionTokens / 1_000_000

	if err := c.reserve(ctx, estTokens, estCost); err != nil {
		return nil, core.Usage{}, err
	}

	var vectors [][]float32
	var usage core.Usage
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, usage, err = c.embedder.EmbedTexts(ctx, texts)
		return err
	}, c.opts.MaxRetries, c.opts.RetryBaseDelay)
	if err != nil {
		return nil, core.Usage{}, fmt.Errorf("embedding batch of %d failed after %d attempts: %w", len(chunks), c.opts.MaxRetries, err)
	}

	if len(vectors) != len(chunks) {
		return nil, core.Usage{}, fmt.Errorf("%w: sent %d, got %d", ErrVectorCountMismatch, len(chunks), len(vectors))
	}

	c.governor.Record(1, usage.Tokens, usage.Cost)
	return vectors, usage, nil
}

// reserve loops on the governor until the batch is admitted, the wait budget
// runs out, or the daily cost ceiling rejects it.
func (c *Client) reserve(ctx context.Context, tokens int, cost float64) error {
	for cycle := 0; ; cycle++ {
		decision := c.governor.Reserve(1, tokens, cost)
		switch decision.Verdict {
		case govern.VerdictPermit:
			return nil
		case govern.VerdictReject:
			c.logger.Warn("batch rejected by governor", "reason", decision.Reason)
			return fmt.Errorf("%w: %s", ErrCostCeilingExceeded, decision.Reason)
		case govern.VerdictWait:
			if cycle >= c.opts.MaxWaitCycles {
				return fmt.Errorf("%w: still %s bound after %d waits", ErrRateLimited, decision.Reason, cycle)
			}
			c.logger.Debug("deferring batch on governor advice",
				"wait", decision.Wait, "reason", decision.Reason, "cycle", cycle+1)
			if err := c.sleep(ctx, decision.Wait); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected governor verdict %d", decision.Verdict)
		}
	}
}
