package lifecycle

import "errors"

var (
	// ErrNotFound means no such file id, or the record was purged because
	// its blob had gone missing.
	ErrNotFound = errors.New("file not found")
	// ErrExpired means the record was armed and its expiry has passed.
	ErrExpired = errors.New("file expired")

	ErrNoFileProvided     = errors.New("no file provided")
	ErrEmptyFile          = errors.New("empty file")
	ErrStorageWriteFailed = errors.New("storage write failed")

	// ErrAlreadyExists is returned by MetadataStore.Insert on id collision.
	ErrAlreadyExists = errors.New("file id already exists")
)
