package intake

import (
	"bytes"
	"context"
	"time"

	"loadline_backend/internal/adapters/storage"
)

// PayloadArchiver copies raw webhook payloads to object storage, keyed by
// date and conversation id, for replay and debugging. Implements Archiver.
type PayloadArchiver struct {
	store  storage.StorageService
	bucket string
}

// NewPayloadArchiver creates an archiver writing into the given bucket.
func NewPayloadArchiver(store storage.StorageService, bucket string) *PayloadArchiver {
	return &PayloadArchiver{store: store, bucket: bucket}
}

// Archive stores one raw payload. The object key carries the delivery date
// so old payloads can be expired by prefix.
func (a *PayloadArchiver) Archive(ctx context.Context, conversationID string, payload []byte) error {
	folder := time.Now().UTC().Format("2006/01/02")
	_, err := a.store.UploadFile(ctx, a.bucket, folder, conversationID+".json",
		"application/json", bytes.NewReader(payload), int64(len(payload)))
	return err
}

// Compile-time check that PayloadArchiver implements Archiver
var _ Archiver = (*PayloadArchiver)(nil)
