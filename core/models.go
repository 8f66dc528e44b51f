package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ContentKind classifies the outcome of content extraction.
type ContentKind int

const (
	// ContentKindText is plain extracted text.
	ContentKindText ContentKind = iota + 1
	// ContentKindStructured is tabular data with a text rendering.
	ContentKindStructured
	// ContentKindError marks a failed extraction attempt.
	ContentKindError
)

// RemoteFile is one row of a remote folder listing.
type RemoteFile struct {
	ID             string
	Title          string
	ContentType    string
	RevisionMarker string // opaque version value, e.g. modification timestamp
	DownloadRef    string
	URL            string
	Size           int64
}

// FileRecord is the durable tracker entry for a processed file.
// At most one FileRecord exists per ExternalID; RevisionMarker is replaced
// wholesale whenever the file is reprocessed.
type FileRecord struct {
	ExternalID      string
	Title           string
	RevisionMarker  string
	LastProcessedAt time.Time
	LastError       string // most recent processing error, empty on success
	ErrorCount      int
}

// ExtractedContent is the result of one extraction attempt for one file.
// It is immutable after creation and lives only for a single pipeline pass.
type ExtractedContent struct {
	Kind        ContentKind
	Body        string
	Pages       int
	Rows        int
	Sheets      int
	Columns     []string // column names for structured content
	Truncated   bool     // a format ceiling was hit and input was cut short
	Method      string   // which extraction strategy produced the result
	ErrorDetail string
}

// ErrorContent builds an error-kind ExtractedContent.
// Extraction handlers return this instead of raising past the dispatch
// boundary, so the orchestrator always receives a well-formed result.
func ErrorContent(detail string) ExtractedContent {
	return ExtractedContent{
		Kind:        ContentKindError,
		Method:      "none",
		ErrorDetail: detail,
	}
}

// Chunk is one bounded segment of a file's extracted text.
// Index is zero-based and contiguous; Total is fixed once chunking for the
// file completes.
type Chunk struct {
	FileID string
	Index  int
	Total  int
	Text   string
}

// VectorRecord is the persisted unit combining a chunk's text, metadata and
// its embedding vector. Writes are idempotent keyed by (FileID, ChunkIndex).
type VectorRecord struct {
	FileID      string
	Title       string
	URL         string
	ChunkIndex  int
	TotalChunks int
	Method      string
	Text        string
	Vector      []float32
}

// Usage is the metered consumption of one embedding call.
type Usage struct {
	Tokens int
	Cost   float64
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.Tokens += other.Tokens
	u.Cost += other.Cost
}

// SearchResult pairs a stored vector record with its similarity score.
type SearchResult struct {
	Record *VectorRecord
	Score  float32
}

// ContentChecksum computes a hex-encoded BLAKE2b digest of raw file content.
// It serves as a revision marker for sources that do not expose modification
// timestamps: identical content always yields an identical marker.
func ContentChecksum(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
