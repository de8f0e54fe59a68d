package upload

import (
	"context"
	"io"
)

// StorageService persists uploads and their bytes.
//
// Lookup failures wrap common.ErrorNotFound, offset mismatches wrap
// common.ErrorInvalidOffset and malformed URIs wrap common.ErrorInvalidURI.
type StorageService interface {
	// GetUploadInfo returns the upload addressed by uri when ownerKey matches.
	GetUploadInfo(ctx context.Context, uri, ownerKey string) (*Info, error)
	// GetUploadURI returns the base URI uploads are addressed under.
	GetUploadURI() string
	// Create allocates a new upload and persists info with offset 0.
	Create(ctx context.Context, info *Info, ownerKey string) (*Info, error)
	// Update rewrites the whole metadata record of info.
	Update(ctx context.Context, info *Info) error
	// Append streams src to the end of the upload. On failure the returned Info
	// still carries the durable offset.
	Append(ctx context.Context, info *Info, src io.Reader) (*Info, error)
	// RemoveLastBytes drops the last n bytes of the upload.
	RemoveLastBytes(ctx context.Context, info *Info, n int64) error
	// Terminate deletes the upload entirely.
	Terminate(ctx context.Context, info *Info) error
	// GetUploadedBytes opens the stored bytes for reading. Caller closes.
	GetUploadedBytes(ctx context.Context, uri, ownerKey string) (io.ReadCloser, error)
	// CleanupExpiredUploads is the hook for an expiry sweep.
	CleanupExpiredUploads(ctx context.Context, locks LockingService) error
	// MaxUploadSize returns the byte cap applied to every upload, 0 = none.
	MaxUploadSize() int64
	// SetMaxUploadSize changes the cap; values <= 0 mean no cap.
	SetMaxUploadSize(n int64)
}

// IDFactory creates upload ids and maps them to and from URIs.
type IDFactory interface {
	CreateID() string
	ReadUploadID(uri string) (string, error)
	UploadURI() string
}

// Lock is held while an upload is being mutated.
type Lock interface {
	Release() error
}

// LockingService serialises access to an upload across requests.
type LockingService interface {
	LockUploadByURI(ctx context.Context, uri string) (Lock, error)
	IsLocked(id string) bool
}

// RecoveredError is returned by Append when the transfer failed but the stored
// offset was re-read from the data and persisted. The Info returned with it
// matches storage.
type RecoveredError struct {
	Err error
}

func (e *RecoveredError) Error() string { return e.Err.Error() }

func (e *RecoveredError) Unwrap() error { return e.Err }
