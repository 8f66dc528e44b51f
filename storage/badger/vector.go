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


package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Records are keyed by (file id, chunk index); a prefix scan over a file id
// yields its chunks in order.
type VectorRepository struct {
	backend *Backend
	dim     int // expected vector dimensionality, 0 disables the check
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
// dim is the embedding dimensionality every stored vector must have;
// pass 0 to accept any dimensionality.
func NewVectorRepository(backend *Backend, dim int) (storage.VectorRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &VectorRepository{backend: backend, dim: dim}, nil
}

// Close is a no-op; the shared backend owns the database handle.
func (r *VectorRepository) Close() error {
	return nil
}

// UpsertVectors writes vector records, replacing existing records with the
// same (FileID, ChunkIndex) key. All records are written in one transaction.
func (r *VectorRepository) UpsertVectors(ctx context.Context, records ...*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		if err := core.ValidateVectorRecord(record, r.dim); err != nil {
			if r.dim > 0 && len(record.Vector) != 0 && len(record.Vector) != r.dim {
				return storage.ErrDimensionMismatch
			}
			return err
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key := makeVectorKey(record.FileID, record.ChunkIndex)
			if err := tx.Set(key, storage.MarshalVectorRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteByFileID removes every vector record for a file.
func (r *VectorRepository) DeleteByFileID(ctx context.Context, fileID string) (int, error) {
	if fileID == "" {
		return 0, core.ErrEmptyFileID
	}

	deleted := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorFilePrefix(fileID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		// Collect keys first; deleting while iterating invalidates the iterator.
		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetByFileID returns a file's vector records ordered by chunk index.
func (r *VectorRepository) GetByFileID(ctx context.Context, fileID string) ([]*core.VectorRecord, error) {
	if fileID == "" {
		return nil, core.ErrEmptyFileID
	}

	var records []*core.VectorRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorFilePrefix(fileID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalVectorRecord(val)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the total number of stored vector records.
func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorRecordPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)

	if err != nil {
		return 0, err
	}
	return count, nil
}

// Search delegates to the backend's similarity scan.
func (r *VectorRepository) Search(ctx context.Context, vector []float32, k int) ([]*core.SearchResult, error) {
	return r.backend.FindSimilar(ctx, vector, k)
}
