package embed

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens for batch admission decisions. Estimates feed
// the governor's reservation; actual usage reported by the embedder is what
// gets recorded.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator backed by the cl100k_base encoding.
// If the encoding cannot be loaded it falls back to a bytes/4 heuristic,
// which overestimates slightly for typical English text. Overestimating is
// safe: reservations never consume budget.
func NewTokenEstimator() *TokenEstimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Default().Warn("tiktoken encoding unavailable, estimating tokens by length", "err", err)
		return &TokenEstimator{}
	}
	return &TokenEstimator{enc: enc}
}

// Estimate returns the token count of a single text.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.enc == nil {
		n := len(text) / 4
		if n == 0 {
			n = 1
		}
		return n
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimateAll returns the total token count across texts.
func (e *TokenEstimator) EstimateAll(texts []string) int {
	total := 0
	for _, text := range texts {
		total += e.Estimate(text)
	}
	return total
}
