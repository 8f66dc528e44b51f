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

import "errors"

// Domain validation errors
var (
	// ErrInvalidFileRecord indicates a FileRecord failed validation.
	ErrInvalidFileRecord = errors.New("invalid file record")

	// ErrInvalidVectorRecord indicates a VectorRecord failed validation.
	ErrInvalidVectorRecord = errors.New("invalid vector record")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyExternalID indicates the ExternalID field is empty.
	ErrEmptyExternalID = errors.New("external id cannot be empty")

	// ErrEmptyFileID indicates the FileID field is empty.
	ErrEmptyFileID = errors.New("file id cannot be empty")

	// ErrNegativeChunkIndex indicates a chunk index below zero.
	ErrNegativeChunkIndex = errors.New("chunk index cannot be negative")

	// ErrChunkIndexOutOfRange indicates a chunk index >= the chunk total.
	ErrChunkIndexOutOfRange = errors.New("chunk index exceeds total")

	// ErrEmptyVector indicates a VectorRecord with no embedding.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)
