package storage

import (
	"github.com/poiesic/docvec/core"
)

// MarshalFileRecord serializes a FileRecord to bytes.
func MarshalFileRecord(record *core.FileRecord) []byte {
	buf := make([]byte, core.FileRecordMUS.Size(*record))
	core.FileRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalFileRecord deserializes a FileRecord from bytes.
func UnmarshalFileRecord(data []byte) (*core.FileRecord, error) {
	record, _, err := core.FileRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, core.VectorRecordMUS.Size(*record))
	core.VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := core.VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
