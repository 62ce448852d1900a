package storage

import (
	"context"
	"time"

	"tvwebhook/internal/payload"
)

// StoredRecord is the durable copy of one accepted alert.
type StoredRecord struct {
	Raw    payload.IncomingMessage   `json:"raw"`
	Parsed payload.NormalizedPayload `json:"parsed"`
}

// RecordKey identifies a StoredRecord. Name sorts lexically in creation order.
type RecordKey struct {
	Name string
	At   time.Time
}

func (k RecordKey) String() string { return k.Name }

// RecordSink receives a copy of every accepted record under an already
// allocated key. Sinks are best-effort mirrors of the file store.
type RecordSink interface {
	Name() string
	Put(ctx context.Context, key RecordKey, rec StoredRecord) error
}

// LoadedRecord is a record read back from disk.
type LoadedRecord struct {
	Key    RecordKey
	Path   string
	Record StoredRecord
}
