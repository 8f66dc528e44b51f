package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

func setupTest(t *testing.T) (storage.TrackerRepository, storage.VectorRepository) {
	t.Helper()

	tracker, vectors, backend, err := NewMemoryRepositories(0)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return tracker, vectors
}

func TestTrackerRepository_CommitAndLookup(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	record := &core.FileRecord{
		ExternalID:      "file-1",
		Title:           "notes.txt",
		RevisionMarker:  "rev-a",
		LastProcessedAt: time.Now().Add(-time.Minute).UTC(),
	}
	require.NoError(t, tracker.Commit(ctx, record))

	got, err := tracker.Lookup(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "rev-a", got.RevisionMarker)
	assert.Equal(t, "notes.txt", got.Title)
}

func TestTrackerRepository_LookupMissing(t *testing.T) {
	tracker, _ := setupTest(t)

	_, err := tracker.Lookup(context.Background(), "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrackerRepository_NeedsProcessing(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	// Untracked file needs processing
	needs, err := tracker.NeedsProcessing(ctx, "file-1", "rev-a")
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, tracker.Commit(ctx, &core.FileRecord{
		ExternalID:      "file-1",
		RevisionMarker:  "rev-a",
		LastProcessedAt: time.Now().UTC(),
	}))

	// Same marker: no-op
	needs, err = tracker.NeedsProcessing(ctx, "file-1", "rev-a")
	require.NoError(t, err)
	assert.False(t, needs)

	// Changed marker: reprocess
	needs, err = tracker.NeedsProcessing(ctx, "file-1", "rev-b")
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestTrackerRepository_CommitReplacesMarker(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, &core.FileRecord{
		ExternalID:      "file-1",
		RevisionMarker:  "rev-a",
		LastProcessedAt: time.Now().UTC(),
	}))
	require.NoError(t, tracker.Commit(ctx, &core.FileRecord{
		ExternalID:      "file-1",
		RevisionMarker:  "rev-b",
		LastProcessedAt: time.Now().UTC(),
	}))

	// Still exactly one record, marker replaced wholesale
	all, err := tracker.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "rev-b", all[0].RevisionMarker)
}

func TestTrackerRepository_MarkFailedKeepsEligibility(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkFailed(ctx, "file-1", "broken.pdf", "embedding failed", time.Now().UTC()))

	got, err := tracker.Lookup(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "embedding failed", got.LastError)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Empty(t, got.RevisionMarker, "failure must not advance the revision marker")

	// Marker still differs from any real revision, so the file is retried
	needs, err := tracker.NeedsProcessing(ctx, "file-1", "rev-a")
	require.NoError(t, err)
	assert.True(t, needs)

	// Repeated failures accumulate
	require.NoError(t, tracker.MarkFailed(ctx, "file-1", "broken.pdf", "embedding failed again", time.Now().UTC()))
	got, err = tracker.Lookup(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ErrorCount)
}

func TestTrackerRepository_Delete(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, &core.FileRecord{
		ExternalID:      "file-1",
		RevisionMarker:  "rev-a",
		LastProcessedAt: time.Now().UTC(),
	}))
	require.NoError(t, tracker.Delete(ctx, "file-1"))

	_, err := tracker.Lookup(ctx, "file-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, tracker.Delete(ctx, "file-1"), storage.ErrNotFound)
}

func TestTrackerRepository_All(t *testing.T) {
	tracker, _ := setupTest(t)
	ctx := context.Background()

	for _, id := range []string{"b-file", "a-file", "c-file"} {
		require.NoError(t, tracker.Commit(ctx, &core.FileRecord{
			ExternalID:      id,
			RevisionMarker:  "rev",
			LastProcessedAt: time.Now().UTC(),
		}))
	}

	all, err := tracker.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Badger iterates keys lexicographically
	assert.Equal(t, "a-file", all[0].ExternalID)
	assert.Equal(t, "b-file", all[1].ExternalID)
	assert.Equal(t, "c-file", all[2].ExternalID)
}
