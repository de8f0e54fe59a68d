// Package idfactory maps upload ids to URIs and back. Ids are random UUIDs.
package idfactory

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/google/uuid"
)

// DefaultUploadURI is used when New receives an empty URI.
const DefaultUploadURI = "/files/"

// UUIDFactory creates UUID ids addressed under a fixed upload URI.
type UUIDFactory struct {
	uploadURI string
}

// New returns a factory for uploadURI. The URI is normalised to start and end
// with "/"; it may not carry a query string.
func New(uploadURI string) (*UUIDFactory, error) {
	u := strings.TrimSpace(uploadURI)
	if u == "" {
		u = DefaultUploadURI
	}
	if strings.ContainsAny(u, "?#") {
		return nil, fmt.Errorf("upload uri %q: %w", uploadURI, common.ErrorInvalidURI)
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return &UUIDFactory{uploadURI: u}, nil
}

func (f *UUIDFactory) CreateID() string {
	return uuid.NewString()
}

func (f *UUIDFactory) UploadURI() string {
	return f.uploadURI
}

// URIFor returns the URI addressing id.
func (f *UUIDFactory) URIFor(id string) string {
	return f.uploadURI + id
}

// ReadUploadID extracts the id from uri. Anything up to and including the
// upload URI is dropped (so absolute URLs work), as is a trailing query. The
// first remaining path segment must be a UUID.
func (f *UUIDFactory) ReadUploadID(uri string) (string, error) {
	idx := strings.Index(uri, f.uploadURI)
	if idx < 0 {
		return "", fmt.Errorf("uri %q outside %q: %w", uri, f.uploadURI, common.ErrorInvalidURI)
	}

	rest := uri[idx+len(f.uploadURI):]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("uri %q: %w", uri, common.ErrorInvalidURI)
	}
	return id.String(), nil
}
