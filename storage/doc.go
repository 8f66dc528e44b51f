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


// Package storage provides the storage abstraction layer for docvec.
//
// Two repositories back the ingestion pipeline:
//
//   - TrackerRepository: the durable mapping from external file id to its
//     last processed revision. It decides which files a cycle must process
//     and must never lose a commit across restarts.
//   - VectorRepository: the searchable store of embedding vectors keyed by
//     (file id, chunk index), with delete-by-file semantics so a file's
//     vectors are replaced as a unit on reprocessing.
//
// Public constructors return interfaces, not concrete types, so storage
// backends stay swappable and tests can substitute in-memory doubles:
//
//	tracker, err := badger.NewTrackerRepository(backend)  // storage.TrackerRepository
//
// Records are serialized with the MUS format (see core's serializers); the
// helpers in serialization.go are the only code that touches raw bytes.
package storage
