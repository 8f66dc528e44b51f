package storage

import (
	"context"
	"time"

	"github.com/poiesic/docvec/core"
)

// TrackerRepository is the durable record of which file versions have been
// processed. It drives the orchestrator's changed-file set and must survive
// process restarts. Implementations must be thread-safe.
type TrackerRepository interface {
	// Lookup retrieves the FileRecord for an external id.
	// Returns ErrNotFound if the file has never been tracked.
	Lookup(ctx context.Context, externalID string) (*core.FileRecord, error)

	// NeedsProcessing reports whether a file should be processed: true if
	// the file is untracked or its stored revision marker differs from
	// currentMarker.
	NeedsProcessing(ctx context.Context, externalID, currentMarker string) (bool, error)

	// Commit durably records a processed file version. The record's
	// RevisionMarker replaces any stored marker wholesale. The write is
	// atomic with respect to process crash: a crash before Commit returns
	// leaves the file eligible for reprocessing.
	Commit(ctx context.Context, record *core.FileRecord) error

	// MarkFailed records a processing failure without advancing the
	// stored revision marker, so the file stays eligible for retry.
	// Creates the record if the file is untracked.
	MarkFailed(ctx context.Context, externalID, title, detail string, at time.Time) error

	// Delete removes a tracked file record, e.g. on explicit file removal.
	// Returns ErrNotFound if the record doesn't exist.
	Delete(ctx context.Context, externalID string) error

	// All returns every tracked FileRecord, ordered by external id.
	All(ctx context.Context) ([]*core.FileRecord, error)

	// Close closes the repository and releases resources.
	Close() error
}

// VectorRepository persists embedding vectors with their chunk metadata and
// serves similarity queries. Writes are idempotent keyed by
// (FileID, ChunkIndex). Implementations must be thread-safe.
type VectorRepository interface {
	// UpsertVectors writes vector records, replacing any existing record
	// with the same (FileID, ChunkIndex) key.
	UpsertVectors(ctx context.Context, records ...*core.VectorRecord) error

	// DeleteByFileID removes every vector record for a file and returns
	// the number of records removed. Deleting an unknown file id is not
	// an error and returns zero.
	DeleteByFileID(ctx context.Context, fileID string) (int, error)

	// GetByFileID returns a file's vector records ordered by chunk index.
	GetByFileID(ctx context.Context, fileID string) ([]*core.VectorRecord, error)

	// Count returns the total number of stored vector records.
	Count(ctx context.Context) (int, error)

	// Search returns the k stored records closest to the query vector,
	// ordered by ascending cosine distance (highest similarity first).
	Search(ctx context.Context, vector []float32, k int) ([]*core.SearchResult, error)

	// Close closes the repository and releases resources.
	Close() error
}
