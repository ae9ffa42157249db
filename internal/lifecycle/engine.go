package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/anthanhphan/gosdk/logger"
)

// DefaultExpireAfter is how long a file stays downloadable after its first
// successful download.
const DefaultExpireAfter = 60 * time.Second

// Options configures an Engine.
type Options struct {
	ExpireAfter time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Engine owns the pending -> armed -> gone state machine. It is safe for
// concurrent use; all cross-request coordination happens in the stores.
type Engine struct {
	meta        MetadataStore
	blobs       BlobStore
	expireAfter time.Duration
	now         func() time.Time
}

// New creates an Engine over the given stores.
func New(meta MetadataStore, blobs BlobStore, opts Options) *Engine {
	if opts.ExpireAfter < time.Second {
		opts.ExpireAfter = DefaultExpireAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		meta:        meta,
		blobs:       blobs,
		expireAfter: opts.ExpireAfter.Truncate(time.Second),
		now:         opts.Now,
	}
}

// ExpireAfter returns the configured expiry window.
func (e *Engine) ExpireAfter() time.Duration {
	return e.expireAfter
}

// clock returns the current time at the second precision records are
// persisted with.
func (e *Engine) clock() time.Time {
	return time.Unix(e.now().Unix(), 0).UTC()
}

// CreateUpload stores the stream as a new pending file and returns its id
// and the name presented to the downloader. No record is written unless
// the blob was persisted.
func (e *Engine) CreateUpload(ctx context.Context, originalName string, r io.Reader) (fileID, downloadName string, err error) {
	if r == nil {
		return "", "", ErrNoFileProvided
	}
	if strings.TrimSpace(originalName) == "" {
		return "", "", ErrEmptyFile
	}

	fileID, err = newFileID()
	if err != nil {
		return "", "", fmt.Errorf("generate file id: %w", err)
	}
	downloadName, err = newDownloadName(originalName)
	if err != nil {
		return "", "", fmt.Errorf("generate download name: %w", err)
	}
	stored := storedName(fileID)

	size, err := e.blobs.Put(ctx, stored, r)
	if err != nil {
		logger.Errorw("blob_write_failed", "file", shortID(fileID), "error", err.Error())
		return "", "", fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}

	rec := FileRecord{
		FileID:       fileID,
		StoredName:   stored,
		OriginalName: originalName,
		DownloadName: downloadName,
		CreatedAt:    e.clock(),
	}
	if err := e.meta.Insert(ctx, rec); err != nil {
		// Best effort; a leftover blob has no record and is never served.
		if derr := e.blobs.Delete(context.WithoutCancel(ctx), stored); derr != nil {
			logger.Warnw("orphan_blob_left", "file", shortID(fileID), "error", derr.Error())
		}
		return "", "", fmt.Errorf("insert file record: %w", err)
	}

	filesCreatedTotal.Inc()
	logger.Infow("file_created", "file", shortID(fileID), "bytes", size, "download_name", downloadName)
	return fileID, downloadName, nil
}

// ResolveDownload looks up a file for download. The first successful call
// arms the expiry timer; a call at or after the expiry purges the file and
// returns ErrExpired. A record whose blob is gone is purged and reported as
// ErrNotFound.
func (e *Engine) ResolveDownload(ctx context.Context, fileID string) (FileRecord, error) {
	if !validFileID(fileID) {
		return FileRecord{}, ErrNotFound
	}

	rec, err := e.get(ctx, fileID)
	if err != nil {
		return FileRecord{}, err
	}

	now := e.clock()
	if rec.ExpiredAt(now) {
		if _, err := e.purge(ctx, rec, "expired"); err != nil {
			return FileRecord{}, errors.Join(ErrExpired, err)
		}
		return FileRecord{}, ErrExpired
	}

	// The blob is checked before arming so a failed resolution never
	// starts the expiry timer.
	ok, err := e.blobs.Exists(ctx, rec.StoredName)
	if err != nil {
		return FileRecord{}, fmt.Errorf("stat blob: %w", err)
	}
	if !ok {
		logger.Warnw("blob_missing", "file", shortID(fileID))
		if _, err := e.dropRecord(ctx, rec, "missing_blob"); err != nil {
			return FileRecord{}, errors.Join(ErrNotFound, err)
		}
		return FileRecord{}, ErrNotFound
	}

	if rec.ExpireAt == nil {
		armed, err := e.meta.Arm(ctx, fileID, now, now.Add(e.expireAfter))
		if err != nil {
			return FileRecord{}, fmt.Errorf("arm file: %w", err)
		}
		if armed {
			filesArmedTotal.Inc()
			logger.Infow("file_armed", "file", shortID(fileID), "expire_at", now.Add(e.expireAfter).Format(time.RFC3339))
		}
		// Re-read so concurrent armers all report the winning expiry.
		if rec, err = e.get(ctx, fileID); err != nil {
			return FileRecord{}, err
		}
	}

	return rec, nil
}

// Open streams the blob of a resolved record. A blob removed after
// resolution is treated like a missing blob.
func (e *Engine) Open(ctx context.Context, rec FileRecord) (io.ReadCloser, int64, error) {
	rc, size, err := e.blobs.Open(ctx, rec.StoredName)
	if err == nil {
		return rc, size, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		if _, derr := e.dropRecord(ctx, rec, "missing_blob"); derr != nil {
			return nil, 0, errors.Join(ErrNotFound, derr)
		}
		return nil, 0, ErrNotFound
	}
	return nil, 0, fmt.Errorf("open blob: %w", err)
}

// CleanupExpired removes every armed record whose expiry is at or before
// now and returns how many this call removed; records purged concurrently
// by a download are not counted. Blob deletion failures are logged and the
// record is still dropped so it never resurfaces.
func (e *Engine) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.meta.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	removed := 0
	var errs []error
	for _, rec := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		deleted, err := e.purge(ctx, rec, "expired")
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", shortID(rec.FileID), err))
			continue
		}
		if deleted {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

// Sweep runs CleanupExpired at the engine's current time.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.CleanupExpired(ctx, e.clock())
}

// Delete removes a file regardless of its state.
func (e *Engine) Delete(ctx context.Context, fileID string) error {
	if !validFileID(fileID) {
		return ErrNotFound
	}
	rec, err := e.get(ctx, fileID)
	if err != nil {
		return err
	}
	deleted, err := e.purge(ctx, rec, "deleted")
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (e *Engine) get(ctx context.Context, fileID string) (FileRecord, error) {
	rec, err := e.meta.Get(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file record: %w", err)
	}
	return rec, nil
}

// purge deletes the blob, then the record. Only the record deletion can
// fail the purge. deleted is false when someone else removed the record
// first.
func (e *Engine) purge(ctx context.Context, rec FileRecord, reason string) (deleted bool, err error) {
	if err := e.blobs.Delete(ctx, rec.StoredName); err != nil {
		logger.Warnw("blob_delete_failed", "file", shortID(rec.FileID), "error", err.Error())
	}
	return e.dropRecord(ctx, rec, reason)
}

func (e *Engine) dropRecord(ctx context.Context, rec FileRecord, reason string) (bool, error) {
	deleted, err := e.meta.Delete(ctx, rec.FileID)
	if err != nil {
		return false, fmt.Errorf("delete file record: %w", err)
	}
	if !deleted {
		return false, nil
	}
	filesRemovedTotal.WithLabelValues(reason).Inc()
	logger.Debugw("file_removed", "file", shortID(rec.FileID), "reason", reason)
	return true, nil
}

// shortID keeps download tokens out of the logs.
func shortID(fileID string) string {
	if len(fileID) > 8 {
		return fileID[:8]
	}
	return fileID
}
