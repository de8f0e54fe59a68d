// Package upload defines the upload model shared by the storage engine, the
// catalog and the admin tool, plus the contracts those components talk through.
package upload

import (
	"maps"
	"time"
)

// Upload types carried as passengers; the storage engine never inspects them.
const (
	TypeRegular      = "regular"
	TypePartial      = "partial"
	TypeConcatenated = "concatenated"
)

// Info describes one upload in progress or completed.
type Info struct {
	// ID is assigned once by Create and never changes.
	ID string `json:"id"`
	// Offset is the number of bytes durably stored in the data file.
	Offset int64 `json:"offset"`
	// OwnerKey binds the upload to a caller; used only for equality checks.
	OwnerKey string `json:"owner_key,omitempty"`

	// Length is the total expected length; nil while deferred.
	Length *int64 `json:"length,omitempty"`
	// Checksum is the final checksum as announced by the client.
	Checksum string `json:"checksum,omitempty"`
	// Metadata is the client supplied key/value metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
	// UploadType is one of the Type* constants.
	UploadType string `json:"upload_type,omitempty"`
	// CreatedAt is set by Create.
	CreatedAt time.Time `json:"created_at"`
}

// HasLength reports whether the total length is known.
func (i *Info) HasLength() bool {
	return i != nil && i.Length != nil
}

// InProgress reports whether more bytes are expected.
func (i *Info) InProgress() bool {
	if i == nil {
		return false
	}
	return !i.HasLength() || i.Offset < *i.Length
}

// Clone returns a deep copy of i.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := *i
	if i.Length != nil {
		l := *i.Length
		c.Length = &l
	}
	c.Metadata = maps.Clone(i.Metadata)
	return &c
}

// Int64 returns a pointer to v, handy for Length.
func Int64(v int64) *int64 {
	return &v
}
