// Package lifecycle implements the file lifecycle engine: a record is
// created pending, armed by its first successful download, and removed
// once its expiry has passed.
package lifecycle

import (
	"context"
	"io"
	"time"
)

// Status is the lifecycle state of a FileRecord.
type Status string

const (
	StatusPending Status = "pending"
	StatusArmed   Status = "armed"
)

// FileRecord is the metadata kept for one uploaded file.
type FileRecord struct {
	FileID       string
	StoredName   string
	OriginalName string
	DownloadName string
	CreatedAt    time.Time

	// FirstDownloadAt and ExpireAt are nil until the record is armed and
	// are always set together.
	FirstDownloadAt *time.Time
	ExpireAt        *time.Time
}

// Status reports whether the record has been armed.
func (r FileRecord) Status() Status {
	if r.ExpireAt != nil {
		return StatusArmed
	}
	return StatusPending
}

// ExpiredAt reports whether an armed record is eligible for deletion at now.
func (r FileRecord) ExpiredAt(now time.Time) bool {
	return r.ExpireAt != nil && !r.ExpireAt.After(now)
}

// MetadataStore is the durable id -> record mapping used by the engine.
// Every operation is atomic for a single record.
type MetadataStore interface {
	// Insert stores a new pending record. It returns ErrAlreadyExists if
	// the id is taken.
	Insert(ctx context.Context, rec FileRecord) error
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, fileID string) (FileRecord, error)
	// Arm sets FirstDownloadAt and ExpireAt only if the record is still
	// pending. armed is true for the single caller whose write won.
	Arm(ctx context.Context, fileID string, firstDownloadAt, expireAt time.Time) (armed bool, err error)
	// Delete removes a record and reports whether it existed. Deleting a
	// missing record is not an error.
	Delete(ctx context.Context, fileID string) (deleted bool, err error)
	// ListExpired returns all records with ExpireAt <= now.
	ListExpired(ctx context.Context, now time.Time) ([]FileRecord, error)
}

// BlobStore persists raw file bytes under a stored name. Missing blobs
// are reported with errors wrapping fs.ErrNotExist.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}
