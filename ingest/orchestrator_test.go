package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/poiesic/docvec/ai/mock"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	srcmock "github.com/poiesic/docvec/source/mock"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
)

const testDim = 8

type fixture struct {
	orch     *Orchestrator
	src      *srcmock.MockSource
	embedder *aimock.MockEmbedder
	tracker  storage.TrackerRepository
	vectors  storage.VectorRepository
}

func newFixture(t *testing.T, tune func(*config.Settings)) *fixture {
	t.Helper()

	settings := config.Default()
	settings.Pipeline.ChunkSize = 400
	settings.Pipeline.ChunkOverlap = 50
	settings.Pipeline.RetryBaseDelayMs = 1
	settings.Embedding.Dimensions = testDim
	if tune != nil {
		tune(&settings)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.Save(path, settings))
	store, err := config.NewStore(path)
	require.NoError(t, err)

	tracker, vectors, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	src := srcmock.NewMockSource()
	embedder := aimock.NewMockEmbedder(testDim)

	orch, err := NewOrchestrator(store, src, tracker, vectors, embedder)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	return &fixture{orch: orch, src: src, embedder: embedder, tracker: tracker, vectors: vectors}
}

func TestNewOrchestratorValidation(t *testing.T) {
	f := newFixture(t, nil)
	store := f.orch.cfg

	_, err := NewOrchestrator(nil, f.src, f.tracker, f.vectors, f.embedder)
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = NewOrchestrator(store, nil, f.tracker, f.vectors, f.embedder)
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = NewOrchestrator(store, f.src, nil, f.vectors, f.embedder)
	assert.ErrorIs(t, err, ErrTrackerRequired)

	_, err = NewOrchestrator(store, f.src, f.tracker, nil, f.embedder)
	assert.ErrorIs(t, err, ErrVectorsRequired)

	_, err = NewOrchestrator(store, f.src, f.tracker, f.vectors, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestCycleProcessesNewFile(t *testing.T) {
	f := newFixture(t, nil)
	// 900 characters at chunk size 400 / overlap 50 makes exactly 3 chunks.
	body := strings.Repeat("abcdefghi ", 90)
	f.src.PutText("file-1", "Doc One", "rev-1", body)

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesSeen)
	assert.Equal(t, 1, stats.FilesChanged)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Zero(t, stats.FilesFailed)
	assert.Equal(t, 3, stats.ChunksEmbedded)
	assert.Positive(t, stats.Usage.Tokens)

	records, err := f.vectors.GetByFileID(context.Background(), "file-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i, rec.ChunkIndex)
		assert.Equal(t, 3, rec.TotalChunks)
		assert.Equal(t, "Doc One", rec.Title)
		assert.Len(t, rec.Vector, testDim)
	}

	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "rev-1", tracked.RevisionMarker)
	assert.Empty(t, tracked.LastError)
}

func TestSecondCycleIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	f.src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("word ", 200))

	_, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	callsAfterFirst := f.embedder.CallCount()
	count1, err := f.vectors.Count(context.Background())
	require.NoError(t, err)

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	// No remote changes: zero additional embedding calls and vectors.
	assert.Zero(t, stats.FilesChanged)
	assert.Equal(t, callsAfterFirst, f.embedder.CallCount())
	count2, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, count1, count2)
	assert.Equal(t, 1, f.src.DownloadCalls())
}

func TestReprocessingReplacesVectors(t *testing.T) {
	f := newFixture(t, nil)
	// ~3 chunks worth of text.
	f.src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("0123456789", 90))

	_, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	first, err := f.vectors.GetByFileID(context.Background(), "file-1")
	require.NoError(t, err)
	require.Len(t, first, 3)

	// The file grows to ~5 chunks under a new revision marker.
	f.src.PutText("file-1", "Doc One", "rev-2", strings.Repeat("0123456789", 180))

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)

	// Stale vectors were deleted before the new set was inserted: exactly
	// 5 remain, never 8.
	second, err := f.vectors.GetByFileID(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Len(t, second, 5)

	total, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestExtractionErrorStillCommits(t *testing.T) {
	f := newFixture(t, nil)
	f.src.Put(core.RemoteFile{
		ID:             "file-1",
		Title:          "Mystery Blob",
		ContentType:    "application/x-unknown",
		RevisionMarker: "rev-1",
		DownloadRef:    "media",
	}, "binary gibberish")

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesProcessed, "extraction errors still commit")
	assert.Equal(t, 1, stats.ExtractionErrors)
	assert.Zero(t, stats.ChunksEmbedded)

	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "rev-1", tracked.RevisionMarker)
	assert.Contains(t, tracked.LastError, "unsupported type")
	assert.Equal(t, 1, tracked.ErrorCount)

	// No reprocessing loop on permanently broken input.
	stats, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.FilesChanged)
}

func TestOversizedFileCommitsWithoutDownload(t *testing.T) {
	f := newFixture(t, nil)
	f.src.Put(core.RemoteFile{
		ID:             "file-1",
		Title:          "Giant Export",
		ContentType:    "text/plain",
		RevisionMarker: "rev-1",
		DownloadRef:    "media",
		Size:           64 << 20,
	}, "body never fetched")

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 1, stats.ExtractionErrors)
	assert.Zero(t, f.src.DownloadCalls(), "oversized files are never downloaded")

	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Contains(t, tracked.LastError, "size")
	assert.Equal(t, "rev-1", tracked.RevisionMarker)
}

func TestEmbeddingFailureLeavesFileEligible(t *testing.T) {
	f := newFixture(t, nil)
	f.src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("word ", 200))

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, core.Usage, error) {
		return nil, core.Usage{}, errors.New("upstream unavailable")
	}

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Zero(t, stats.FilesProcessed)

	// Not committed: no vectors, tracker still flags the file.
	count, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	needs, err := f.tracker.NeedsProcessing(context.Background(), "file-1", "rev-1")
	require.NoError(t, err)
	assert.True(t, needs)

	// The failure is observable.
	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Contains(t, tracked.LastError, "upstream unavailable")

	// Once the remote recovers, the next cycle picks the file up.
	f.embedder.EmbedTextsFunc = nil
	stats, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)
}

func TestCostCeilingSuspendsCycle(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) {
		s.Limits.DailyCostCeiling = 0.000001
	})
	f.src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("word ", 200))
	f.src.PutText("file-2", "Doc Two", "rev-1", strings.Repeat("word ", 200))

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.CostSuspended)
	assert.Equal(t, 2, stats.FilesFailed)
	assert.Zero(t, stats.FilesProcessed)
	assert.Zero(t, f.embedder.CallCount(), "no remote calls past the ceiling")

	// Both files stay eligible for a later cycle.
	for _, id := range []string{"file-1", "file-2"} {
		needs, err := f.tracker.NeedsProcessing(context.Background(), id, "rev-1")
		require.NoError(t, err)
		assert.True(t, needs, "file %s must stay eligible", id)
	}
}

func TestCrashRecoveryReprocessesIdempotently(t *testing.T) {
	f := newFixture(t, nil)
	body := strings.Repeat("0123456789", 180)
	f.src.PutText("file-1", "Doc One", "rev-1", body)

	_, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	// Simulate a crash after vectors were written but before the tracker
	// commit landed: drop the tracker record.
	require.NoError(t, f.tracker.Delete(context.Background(), "file-1"))

	needs, err := f.tracker.NeedsProcessing(context.Background(), "file-1", "rev-1")
	require.NoError(t, err)
	require.True(t, needs)

	_, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	// Reprocessing overwrote, not duplicated: 5 vectors, not 10.
	count, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestEmptyFileCommitsWithoutVectors(t *testing.T) {
	f := newFixture(t, nil)
	f.src.PutText("file-1", "Empty Doc", "rev-1", "")

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Zero(t, stats.ExtractionErrors, "an empty result is not an error")
	assert.Zero(t, stats.ChunksEmbedded)

	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Empty(t, tracked.LastError)
}

func TestCanceledContextStopsBetweenFiles(t *testing.T) {
	f := newFixture(t, nil)
	f.src.PutText("file-1", "Doc One", "rev-1", "some text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.RunCycle(ctx)
	assert.Error(t, err)
}

func TestChecksumMarkerForMarkerlessSource(t *testing.T) {
	f := newFixture(t, nil)
	put := func(body string) {
		f.src.Put(core.RemoteFile{
			ID:          "file-1",
			Title:       "No Timestamps Here",
			ContentType: "text/plain",
			DownloadRef: "media",
			Size:        int64(len(body)),
		}, body)
	}
	put("original body")

	stats, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)
	callsAfterFirst := f.embedder.CallCount()

	tracked, err := f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	checksum := tracked.RevisionMarker
	assert.NotEmpty(t, checksum, "commit records the content checksum as the marker")
	assert.Equal(t, core.ContentChecksum([]byte("original body")), checksum)

	// Without a listed marker the diff pass cannot rule the file out, but
	// matching content must not re-embed.
	stats, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesChanged)
	assert.Equal(t, callsAfterFirst, f.embedder.CallCount())
	assert.Zero(t, stats.ChunksEmbedded)

	// Changed bytes change the checksum and reprocess.
	put("rewritten body")
	_, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Greater(t, f.embedder.CallCount(), callsAfterFirst)

	tracked, err = f.tracker.Lookup(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, core.ContentChecksum([]byte("rewritten body")), tracked.RevisionMarker)
}

func TestCycleWritesProgress(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	orch, err := NewOrchestrator(f.orch.cfg, f.src, f.tracker, f.vectors, f.embedder,
		WithProgress(&buf))
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	f.src.PutText("file-1", "Doc One", "rev-1", "some text")
	f.src.PutText("file-2", "Doc Two", "rev-1", "other text")

	_, err = orch.RunCycle(context.Background())
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "2/2 files")
	assert.Contains(t, output, "100.0%")

	// A cycle with no changed files stays silent.
	buf.Reset()
	_, err = orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestDefaultDimensionEndToEnd(t *testing.T) {
	// The stock configuration: 1536-dim vectors, chunk size 400, overlap 50.
	settings := config.Default()
	settings.Pipeline.RetryBaseDelayMs = 1
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.Save(path, settings))
	store, err := config.NewStore(path)
	require.NoError(t, err)

	tracker, vectors, backend, err := badger.NewMemoryRepositories(settings.Embedding.Dimensions)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := aimock.NewMockEmbedder(settings.Embedding.Dimensions)
	src := srcmock.NewMockSource()
	orch, err := NewOrchestrator(store, src, tracker, vectors, embedder)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("abcdefghi ", 90))

	stats, err := orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunksEmbedded)

	records, err := vectors.GetByFileID(context.Background(), "file-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Len(t, rec.Vector, 1536)
	}
}

func TestStatsAccumulate(t *testing.T) {
	f := newFixture(t, nil)
	f.src.PutText("file-1", "Doc One", "rev-1", strings.Repeat("word ", 200))

	_, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	f.src.PutText("file-2", "Doc Two", "rev-1", strings.Repeat("word ", 200))
	_, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	totals := f.orch.Stats()
	assert.Equal(t, 2, totals.Cycles)
	assert.Equal(t, 2, totals.FilesProcessed)
	assert.Positive(t, totals.ChunksEmbedded)
	assert.Positive(t, totals.Usage.Tokens)
}
