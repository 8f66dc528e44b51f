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


package core

import (
	"fmt"
	"time"
)

// ValidateFileRecord validates a FileRecord according to domain rules.
//
// Validation rules:
//   - ExternalID must not be empty
//   - LastProcessedAt must not be in the future
//
// NOT validated:
//   - RevisionMarker (opaque; an empty marker is legal for never-processed files)
//   - LastError / ErrorCount (bookkeeping fields)
func ValidateFileRecord(record *FileRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidFileRecord)
	}

	if record.ExternalID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFileRecord, ErrEmptyExternalID)
	}

	if !record.LastProcessedAt.IsZero() && !IsValidTimestamp(record.LastProcessedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidFileRecord, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - FileID must not be empty
//   - Index must be in [0, Total)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.FileID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyFileID)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrNegativeChunkIndex)
	}

	if chunk.Index >= chunk.Total {
		return fmt.Errorf("%w: %w: index %d, total %d",
			ErrInvalidChunk, ErrChunkIndexOutOfRange, chunk.Index, chunk.Total)
	}

	return nil
}

// ValidateVectorRecord validates a VectorRecord before persistence.
//
// Validation rules:
//   - FileID must not be empty
//   - ChunkIndex must be in [0, TotalChunks)
//   - Vector must be non-empty and, when dim > 0, exactly dim long
func ValidateVectorRecord(record *VectorRecord, dim int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidVectorRecord)
	}

	if record.FileID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrEmptyFileID)
	}

	if record.ChunkIndex < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrNegativeChunkIndex)
	}

	if record.ChunkIndex >= record.TotalChunks {
		return fmt.Errorf("%w: %w: index %d, total %d",
			ErrInvalidVectorRecord, ErrChunkIndexOutOfRange, record.ChunkIndex, record.TotalChunks)
	}

	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrEmptyVector)
	}

	if dim > 0 && len(record.Vector) != dim {
		return fmt.Errorf("%w: vector dimensionality %d, want %d",
			ErrInvalidVectorRecord, len(record.Vector), dim)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
