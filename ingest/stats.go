package ingest

import (
	"time"

	"github.com/poiesic/docvec/core"
)

// CycleStats summarizes one polling cycle.
type CycleStats struct {
	CycleID  string
	Started  time.Time
	Finished time.Time

	// FilesSeen is the size of the remote listing.
	FilesSeen int
	// FilesChanged is how many files the tracker flagged for processing.
	FilesChanged int
	// FilesProcessed is how many files were committed this cycle,
	// including extraction-error commits.
	FilesProcessed int
	// FilesFailed is how many files were left uncommitted for retry.
	FilesFailed int
	// ExtractionErrors counts files committed with an error-kind result.
	ExtractionErrors int

	ChunksEmbedded int
	Usage          core.Usage

	// CostSuspended is set when the daily cost ceiling stopped embedding
	// work partway through the cycle.
	CostSuspended bool

	// LastError is the most recent per-file error message, if any.
	LastError string
}

// Totals aggregates stats across the process lifetime.
type Totals struct {
	Cycles           int
	FilesProcessed   int
	FilesFailed      int
	ExtractionErrors int
	ChunksEmbedded   int
	Usage            core.Usage
	LastCycle        CycleStats
}

func (t *Totals) absorb(c CycleStats) {
	t.Cycles++
	t.FilesProcessed += c.FilesProcessed
	t.FilesFailed += c.FilesFailed
	t.ExtractionErrors += c.ExtractionErrors
	t.ChunksEmbedded += c.ChunksEmbedded
	t.Usage.Add(c.Usage)
	t.LastCycle = c
}
