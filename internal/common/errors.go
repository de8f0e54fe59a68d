// Package common defines the sentinel errors shared by the storage engine and
// its collaborators. Callers should use errors.Is to match these values, since
// they are usually returned wrapped with extra context.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("upload not found")

	// Upload state errors.
	ErrorInvalidOffset = errors.New("invalid upload offset")
	ErrorInvalidURI    = errors.New("invalid upload uri")

	// Allocation errors.
	ErrorIDAllocationExhausted = errors.New("upload id allocation exhausted")

	// Metadata errors (unreadable or unsupported record).
	ErrorIncorrectMetadata = errors.New("incorrect metadata")

	// Generic/internal flow control.
	ErrorInternal = errors.New("internal error")
	ErrorLocked   = errors.New("upload is locked")
)
