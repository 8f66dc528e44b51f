package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the types that reach stable storage. Only FileRecord
// and VectorRecord are persisted; everything else is pipeline-scoped.

var (
	// FileRecordMUS serializes FileRecord values for the tracker store.
	FileRecordMUS = fileRecordMUS{}

	// VectorRecordMUS serializes VectorRecord values for the vector store.
	VectorRecordMUS = vectorRecordMUS{}
)

var (
	_ mus.Serializer[FileRecord]   = fileRecordMUS{}
	_ mus.Serializer[VectorRecord] = vectorRecordMUS{}
)

type fileRecordMUS struct{}

func (fileRecordMUS) Marshal(r FileRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ExternalID, bs)
	n += ord.String.Marshal(r.Title, bs[n:])
	n += ord.String.Marshal(r.RevisionMarker, bs[n:])
	n += varint.Int64.Marshal(r.LastProcessedAt.UnixMicro(), bs[n:])
	n += ord.String.Marshal(r.LastError, bs[n:])
	n += varint.Int.Marshal(r.ErrorCount, bs[n:])
	return n
}

func (fileRecordMUS) Unmarshal(bs []byte) (r FileRecord, n int, err error) {
	var n1 int
	if r.ExternalID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if r.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.RevisionMarker, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	var micros int64
	if micros, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	r.LastProcessedAt = time.UnixMicro(micros).UTC()
	if r.LastError, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.ErrorCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (fileRecordMUS) Size(r FileRecord) (size int) {
	size = ord.String.Size(r.ExternalID)
	size += ord.String.Size(r.Title)
	size += ord.String.Size(r.RevisionMarker)
	size += varint.Int64.Size(r.LastProcessedAt.UnixMicro())
	size += ord.String.Size(r.LastError)
	size += varint.Int.Size(r.ErrorCount)
	return size
}

func (s fileRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Marshal(r VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.FileID, bs)
	n += ord.String.Marshal(r.Title, bs[n:])
	n += ord.String.Marshal(r.URL, bs[n:])
	n += varint.Int.Marshal(r.ChunkIndex, bs[n:])
	n += varint.Int.Marshal(r.TotalChunks, bs[n:])
	n += ord.String.Marshal(r.Method, bs[n:])
	n += ord.String.Marshal(r.Text, bs[n:])
	n += varint.Int.Marshal(len(r.Vector), bs[n:])
	for _, v := range r.Vector {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	return n
}

func (vectorRecordMUS) Unmarshal(bs []byte) (r VectorRecord, n int, err error) {
	var n1 int
	if r.FileID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if r.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.URL, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.TotalChunks, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.Method, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if r.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	var length int
	if length, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if length > 0 {
		r.Vector = make([]float32, length)
		for i := 0; i < length; i++ {
			if r.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
				return
			}
			n += n1
		}
	}
	return
}

func (vectorRecordMUS) Size(r VectorRecord) (size int) {
	size = ord.String.Size(r.FileID)
	size += ord.String.Size(r.Title)
	size += ord.String.Size(r.URL)
	size += varint.Int.Size(r.ChunkIndex)
	size += varint.Int.Size(r.TotalChunks)
	size += ord.String.Size(r.Method)
	size += ord.String.Size(r.Text)
	size += varint.Int.Size(len(r.Vector))
	for _, v := range r.Vector {
		size += raw.Float32.Size(v)
	}
	return size
}

func (s vectorRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
