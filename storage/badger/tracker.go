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
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// TrackerRepository implements storage.TrackerRepository for BadgerDB.
type TrackerRepository struct {
	backend *Backend
}

var _ storage.TrackerRepository = (*TrackerRepository)(nil)

// NewTrackerRepository creates a new TrackerRepository.
func NewTrackerRepository(backend *Backend) (storage.TrackerRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &TrackerRepository{backend: backend}, nil
}

// Close is a no-op; the shared backend owns the database handle.
func (r *TrackerRepository) Close() error {
	return nil
}

// Lookup retrieves the FileRecord for an external id.
func (r *TrackerRepository) Lookup(ctx context.Context, externalID string) (*core.FileRecord, error) {
	var record *core.FileRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTrackerKey(externalID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalFileRecord(val)
			return err
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return record, nil
}

// NeedsProcessing reports whether the file is untracked or its stored
// revision marker differs from currentMarker.
func (r *TrackerRepository) NeedsProcessing(ctx context.Context, externalID, currentMarker string) (bool, error) {
	record, err := r.Lookup(ctx, externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return record.RevisionMarker != currentMarker, nil
}

// Commit durably records a processed file version in a single transaction.
func (r *TrackerRepository) Commit(ctx context.Context, record *core.FileRecord) error {
	if err := core.ValidateFileRecord(record); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeTrackerKey(record.ExternalID), storage.MarshalFileRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// MarkFailed records a processing failure. The stored revision marker is
// left untouched so the file stays eligible for the next cycle.
func (r *TrackerRepository) MarkFailed(ctx context.Context, externalID, title, detail string, at time.Time) error {
	if externalID == "" {
		return core.ErrEmptyExternalID
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeTrackerKey(externalID)

		record := &core.FileRecord{ExternalID: externalID, Title: title}
		item, err := tx.Get(key)
		if err == nil {
			err = item.Value(func(val []byte) error {
				var uerr error
				record, uerr = storage.UnmarshalFileRecord(val)
				return uerr
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record.Title = title
		record.LastError = detail
		record.ErrorCount++
		if record.LastProcessedAt.IsZero() {
			record.LastProcessedAt = at
		}

		if err := tx.Set(key, storage.MarshalFileRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes a tracked file record.
func (r *TrackerRepository) Delete(ctx context.Context, externalID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeTrackerKey(externalID)

		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// All returns every tracked FileRecord, ordered by external id.
func (r *TrackerRepository) All(ctx context.Context) ([]*core.FileRecord, error) {
	var records []*core.FileRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(trackerRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalFileRecord(val)
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
