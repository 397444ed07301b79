package filestore

import (
	"time"
)

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "exports/main/20260101T000000Z.json").
	Key string `json:"key"`

	// Bucket is the bucket the object lives in.
	Bucket string `json:"bucket"`

	// Size is the byte size of the object. -1 if unknown.
	Size int64 `json:"size"`

	// ContentType is the MIME type (e.g. "application/json").
	ContentType string `json:"content_type,omitempty"`

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string `json:"etag,omitempty"`

	// LastModified is when the object was last written.
	LastModified time.Time `json:"last_modified"`
}

// PutOptions describes an upload.
type PutOptions struct {
	// ContentType is stored with the object. Empty means application/octet-stream.
	ContentType string

	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
}
