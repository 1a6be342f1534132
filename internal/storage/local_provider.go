package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider copies artifacts into a directory tree on the local
// filesystem. It is the destination of choice for runs on a workstation,
// where "upload" just means collecting documents out of the volatile
// download directory.
type LocalProvider struct {
	baseDir string
}

// NewLocalProvider creates a filesystem-backed provider rooted at baseDir.
// The directory is created if missing and probed for writability so a
// misconfigured run fails up front.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &LocalProvider{baseDir: baseDir}, nil
}

// Upload copies the file under baseDir/objectName and returns a file://
// URI.
func (l *LocalProvider) Upload(ctx context.Context, localPath, objectName string) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}
	if strings.TrimSpace(objectName) == "" {
		return UploadResult{}, fmt.Errorf("object name is required")
	}

	fullPath := filepath.Join(l.baseDir, filepath.FromSlash(objectName))

	// Reject names that would escape the base directory.
	cleanBase := filepath.Clean(l.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return UploadResult{}, fmt.Errorf("object name escapes base directory")
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return UploadResult{}, fmt.Errorf("failed to create parent directories: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open artifact %s: %w", localPath, err)
	}
	defer src.Close() //nolint:errcheck // read-only handle

	dst, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create destination %s: %w", fullPath, err)
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close() //nolint:errcheck // already failing
		return UploadResult{}, fmt.Errorf("copy artifact: %w", err)
	}
	if err := dst.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("close destination: %w", err)
	}

	return UploadResult{RemoteURI: "file://" + fullPath, Bytes: n}, nil
}
