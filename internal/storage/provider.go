// Package storage defines the interfaces for archiving downloaded
// documents to blob storage. The abstraction keeps the run logic
// independent of the destination (Google Cloud Storage in production, the
// local filesystem or nothing at all during development).
package storage

import (
	"context"
)

// UploadResult describes where an artifact landed.
type UploadResult struct {
	// RemoteURI identifies the stored object, e.g. gs://bucket/key or
	// file:///path.
	RemoteURI string
	// Bytes is the number of bytes uploaded.
	Bytes int64
}

// Provider defines the common interface for an artifact destination.
type Provider interface {
	// Upload stores the file at localPath under objectName and returns
	// where it landed. objectName is a slash-separated key relative to the
	// provider's configured root.
	Upload(ctx context.Context, localPath, objectName string) (UploadResult, error)
}

// NoOpProvider is a storage provider that performs no operations. It is
// used when no upload destination is configured: documents stay in the
// download directory and the run proceeds as if each upload succeeded.
type NoOpProvider struct{}

// Upload for NoOpProvider does nothing and reports a synthetic URI.
func (n *NoOpProvider) Upload(_ context.Context, _ string, objectName string) (UploadResult, error) {
	return UploadResult{RemoteURI: "noop://" + objectName}, nil
}
