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


package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/chunk"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/embed"
	"github.com/poiesic/docvec/extract"
	"github.com/poiesic/docvec/govern"
	"github.com/poiesic/docvec/source"
	"github.com/poiesic/docvec/storage"
)

// Orchestrator drives the ingestion pipeline: poll the source, diff against
// the tracker, and run each changed file through extraction, chunking,
// embedding and the vector writer before committing tracker state.
//
// Files are processed strictly one at a time. The governor's budget is
// shared, and sequential processing keeps per-file atomicity easy to reason
// about. A single-worker pool serializes cycles, so a poll tick that fires
// while a cycle is still running is skipped rather than queued.
type Orchestrator struct {
	cfg        *config.Store
	src        source.Source
	tracker    storage.TrackerRepository
	vectors    storage.VectorRepository
	embedder   ai.Embedder
	dispatcher *extract.Dispatcher
	governor   *govern.Governor
	estimator  *embed.TokenEstimator
	pool       *ants.Pool
	logger     *slog.Logger

	progressWriter io.Writer

	mu     sync.Mutex
	totals Totals
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithDispatcher replaces the default extraction dispatcher, e.g. to
// register additional decoders.
func WithDispatcher(d *extract.Dispatcher) Option {
	return func(o *Orchestrator) error {
		o.dispatcher = d
		return nil
	}
}

// WithProgress writes per-file progress for each cycle to w, typically
// os.Stderr during a foreground sync.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) error {
		o.progressWriter = w
		return nil
	}
}

// WithGovernorClock injects a time source into the governor, used by tests.
func WithGovernorClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		o.governor = govern.New(governorLimits(o.cfg.Current()), govern.WithClock(now))
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(
	cfg *config.Store,
	src source.Source,
	tracker storage.TrackerRepository,
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if src == nil {
		return nil, ErrSourceRequired
	}
	if tracker == nil {
		return nil, ErrTrackerRequired
	}
	if vectors == nil {
		return nil, ErrVectorsRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	settings := cfg.Current()

	// Non-blocking single worker: an overlapping cycle request fails fast
	// instead of queueing behind the running one.
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		src:        src,
		tracker:    tracker,
		vectors:    vectors,
		embedder:   embedder,
		dispatcher: extract.NewDispatcher(extract.DefaultCeilings()),
		governor:   govern.New(governorLimits(settings)),
		estimator:  embed.NewTokenEstimator(),
		pool:       pool,
		logger:     slog.Default().With("component", "orchestrator"),
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			pool.Release()
			return nil, optErr
		}
	}

	return o, nil
}

// Release frees the orchestrator's worker pool. Call after Run has returned.
func (o *Orchestrator) Release() {
	o.pool.Release()
}

// Stats returns lifetime totals including the most recent cycle.
func (o *Orchestrator) Stats() Totals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totals
}

// GovernorUsage returns the governor's current window usage.
func (o *Orchestrator) GovernorUsage() govern.Snapshot {
	return o.governor.Usage()
}

func governorLimits(s config.Settings) govern.Limits {
	return govern.Limits{
		RequestsPerMinute: s.Limits.RequestsPerMinute,
		RequestsPerHour:   s.Limits.RequestsPerHour,
		RequestsPerDay:    s.Limits.RequestsPerDay,
		TokensPerMinute:   s.Limits.TokensPerMinute,
		DailyCostCeiling:  s.Limits.DailyCostCeiling,
	}
}

// Run polls the source until the context is canceled. The first cycle starts
// immediately; the interval between cycles is re-read from config each time,
// so tuning it does not require a restart. Cancellation is cooperative: a
// running cycle finishes its current file set before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		stats, err := o.RunCycle(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("cycle failed", "err", err)
		} else if err == nil {
			o.logger.Info("cycle complete",
				"cycle", stats.CycleID,
				"processed", stats.FilesProcessed,
				"failed", stats.FilesFailed,
				"chunks", stats.ChunksEmbedded,
				"cost", stats.Usage.Cost)
		}

		interval := o.cfg.Current().PollInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle executes one polling cycle synchronously. Cycles are serialized:
// if one is already running, ErrCycleInProgress is returned without queueing.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleStats, error) {
	var (
		stats CycleStats
		err   error
		done  = make(chan struct{})
	)

	submitErr := o.pool.Submit(func() {
		defer close(done)
		stats, err = o.runCycle(ctx)
	})
	if submitErr != nil {
		if errors.Is(submitErr, ants.ErrPoolOverload) {
			return CycleStats{}, ErrCycleInProgress
		}
		return CycleStats{}, submitErr
	}

	<-done
	if err == nil {
		o.mu.Lock()
		o.totals.absorb(stats)
		o.mu.Unlock()
	}
	return stats, err
}

// runCycle is the cycle state machine: poll, diff, process each changed file,
// commit per file.
func (o *Orchestrator) runCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{
		CycleID: uuid.NewString(),
		Started: time.Now().UTC(),
	}
	logger := o.logger.With("cycle", stats.CycleID)

	// Settings are re-read at cycle start; edits to the config file take
	// effect here.
	if err := o.cfg.Reload(); err != nil {
		logger.Warn("config reload failed, using previous settings", "err", err)
	}
	settings := o.cfg.Current()
	o.governor.SetLimits(governorLimits(settings))

	chunker, err := chunk.NewChunker(settings.Pipeline.ChunkSize, settings.Pipeline.ChunkOverlap)
	if err != nil {
		return stats, fmt.Errorf("invalid chunking settings: %w", err)
	}

	client := embed.NewClient(o.embedder, o.governor, o.estimator, embed.Options{
		BatchSize:            settings.Pipeline.BatchSize,
		MaxRetries:           settings.Pipeline.MaxRetries,
		RetryBaseDelay:       settings.RetryBaseDelay(),
		MaxWaitCycles:        settings.Pipeline.MaxWaitCycles,
		CostPerMillionTokens: settings.Embedding.CostPerMillionTokens,
	})

	files, err := o.src.ListFiles(ctx, settings.Source.FolderID, settings.Source.Recursive)
	if err != nil {
		return stats, fmt.Errorf("list source folder: %w", err)
	}
	stats.FilesSeen = len(files)

	var changed []core.RemoteFile
	for _, file := range files {
		needs, err := o.tracker.NeedsProcessing(ctx, file.ID, file.RevisionMarker)
		if err != nil {
			return stats, fmt.Errorf("tracker diff for %s: %w", file.ID, err)
		}
		if needs {
			changed = append(changed, file)
		}
	}
	stats.FilesChanged = len(changed)
	logger.Info("cycle diff", "seen", stats.FilesSeen, "changed", stats.FilesChanged)

	var progress *ProgressTracker
	if o.progressWriter != nil && len(changed) > 0 {
		progress = NewProgressTracker(o.progressWriter, len(changed), 1)
		progress.Start()
	}

	for _, file := range changed {
		// Cooperative stop between files only; aborting mid-file would
		// risk inconsistent tracker/vector state.
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		if stats.CostSuspended {
			logger.Warn("skipping file, embedding suspended for this cycle", "file", file.ID)
			stats.FilesFailed++
			continue
		}

		err := o.processFile(ctx, logger, chunker, client, file, &stats)
		if err != nil {
			stats.FilesFailed++
			stats.LastError = err.Error()
			if markErr := o.tracker.MarkFailed(ctx, file.ID, file.Title, err.Error(), time.Now().UTC()); markErr != nil {
				logger.Error("recording failure state", "file", file.ID, "err", markErr)
			}
			if errors.Is(err, embed.ErrCostCeilingExceeded) {
				// The ceiling binds for the rest of the day; stop all
				// remaining embedding work this cycle and make it loud.
				logger.Error("daily cost ceiling reached, suspending embedding", "file", file.ID)
				stats.CostSuspended = true
			} else {
				logger.Error("file processing failed, will retry next cycle", "file", file.ID, "err", err)
			}
		} else {
			stats.FilesProcessed++
		}

		if progress != nil {
			progress.Increment(1)
		}
	}

	if progress != nil {
		progress.Finish()
	}

	stats.Finished = time.Now().UTC()
	return stats, nil
}

// processFile runs one file through extract, chunk, embed, write, commit.
// A returned error means tracker state was NOT committed and the file stays
// eligible for the next cycle. Extraction errors are not errors here: the
// file is committed with no vectors so permanently broken input does not
// reprocess forever.
func (o *Orchestrator) processFile(
	ctx context.Context,
	logger *slog.Logger,
	chunker *chunk.Chunker,
	client *embed.Client,
	file core.RemoteFile,
	stats *CycleStats,
) error {
	if max := o.dispatcher.Ceilings().MaxBytes; max > 0 && file.Size > max {
		logger.Error("file exceeds size ceiling, committing without vectors",
			"file", file.ID, "title", file.Title, "size", file.Size)
		stats.ExtractionErrors++
		detail := fmt.Sprintf("file size %d exceeds ceiling %d", file.Size, max)
		return o.writeAndCommit(ctx, file, nil, detail)
	}

	body, err := o.src.Download(ctx, file)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	// Sources without modification timestamps list an empty revision marker.
	// The content checksum stands in: identical bytes mean an identical
	// marker, so unchanged files skip embedding even though the diff pass
	// could not rule them out.
	if file.RevisionMarker == "" {
		data, readErr := io.ReadAll(body)
		body.Close()
		if readErr != nil {
			return fmt.Errorf("download: %w", readErr)
		}
		file.RevisionMarker = core.ContentChecksum(data)
		if prev, lookupErr := o.tracker.Lookup(ctx, file.ID); lookupErr == nil && prev.RevisionMarker == file.RevisionMarker {
			logger.Debug("content unchanged, skipping", "file", file.ID)
			return nil
		}
		body = io.NopCloser(bytes.NewReader(data))
	}

	content := o.dispatcher.Extract(ctx, file.ContentType, body)
	body.Close()

	if content.Kind == core.ContentKindError {
		// Logged distinctly from a successful empty result; the commit
		// below still advances the revision marker.
		logger.Error("extraction failed, committing without vectors",
			"file", file.ID, "title", file.Title, "detail", content.ErrorDetail)
		stats.ExtractionErrors++
		return o.writeAndCommit(ctx, file, nil, content.ErrorDetail)
	}

	chunks := chunker.Split(file.ID, content.Body)
	if len(chunks) == 0 {
		logger.Info("file has no extractable text", "file", file.ID, "title", file.Title)
		return o.writeAndCommit(ctx, file, nil, "")
	}

	vectors, usage, err := client.EmbedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	stats.ChunksEmbedded += len(chunks)
	stats.Usage.Add(usage)

	records := make([]*core.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = &core.VectorRecord{
			FileID:      file.ID,
			Title:       file.Title,
			URL:         file.URL,
			ChunkIndex:  c.Index,
			TotalChunks: c.Total,
			Method:      content.Method,
			Text:        c.Text,
			Vector:      vectors[i],
		}
	}

	logger.Debug("file processed",
		"file", file.ID, "chunks", len(chunks),
		"tokens", usage.Tokens, "truncated", content.Truncated)

	// Extracted content and chunks go out of scope here; nothing from this
	// file outlives the pass.
	return o.writeAndCommit(ctx, file, records, "")
}

// writeAndCommit replaces the file's vector set and then commits tracker
// state, in that order: a crash between the two causes a harmless
// reprocess, never a committed revision without its vectors.
func (o *Orchestrator) writeAndCommit(ctx context.Context, file core.RemoteFile, records []*core.VectorRecord, lastError string) error {
	deleted, err := o.vectors.DeleteByFileID(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("delete stale vectors: %w", err)
	}
	if deleted > 0 {
		o.logger.Debug("removed stale vectors", "file", file.ID, "count", deleted)
	}

	if len(records) > 0 {
		if err := o.vectors.UpsertVectors(ctx, records...); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}

	record := &core.FileRecord{
		ExternalID:      file.ID,
		Title:           file.Title,
		RevisionMarker:  file.RevisionMarker,
		LastProcessedAt: time.Now().UTC(),
		LastError:       lastError,
	}
	if lastError != "" {
		if prev, lookupErr := o.tracker.Lookup(ctx, file.ID); lookupErr == nil {
			record.ErrorCount = prev.ErrorCount + 1
		} else {
			record.ErrorCount = 1
		}
	}

	if err := o.tracker.Commit(ctx, record); err != nil {
		return fmt.Errorf("commit tracker state: %w", err)
	}
	return nil
}
