package embed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmptyBatch is returned when EmbedBatch is called with no chunks
	ErrEmptyBatch = errors.New("batch must not be empty")

	// ErrBatchTooLarge is returned when a batch exceeds the configured batch size
	ErrBatchTooLarge = errors.New("batch exceeds configured batch size")

	// ErrRateLimited is returned when the governor keeps deferring a batch
	// past the allowed number of wait cycles. The file should be retried on
	// a later cycle.
	ErrRateLimited = errors.New("rate limit wait budget exhausted")

	// ErrCostCeilingExceeded is returned when the governor rejects a batch
	// against the daily cost ceiling. No remote call was made.
	ErrCostCeilingExceeded = errors.New("daily cost ceiling exceeded")

	// ErrVectorCountMismatch is returned when the embedding service returns
	// a different number of vectors than texts sent.
	ErrVectorCountMismatch = errors.New("embedding count does not match batch size")
)
