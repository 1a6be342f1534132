package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/seumter-tools/registry-archiver/internal/logging"
)

// GCSProvider implements the storage.Provider interface for Google Cloud
// Storage.
type GCSProvider struct {
	Client     *storage.Client
	BucketName string
	Prefix     string
}

// NewGCSProvider initializes a new GCS client and verifies the connection.
// credentialsJSON optionally carries a service-account key payload (the
// scheduled workflow passes it through a secret); when empty, Google's
// "Application Default Credentials" (ADC) apply.
func NewGCSProvider(ctx context.Context, bucketName, prefix, credentialsJSON string) (*GCSProvider, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Check that the bucket exists and we have permission to access it, so
	// a misconfigured run fails before the browser ever launches.
	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close GCS client after bucket existence check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		Client:     client,
		BucketName: bucketName,
		Prefix:     prefix,
	}, nil
}

// Upload streams the local file into the bucket. Close on the object
// writer finalizes the upload; until then nothing is visible.
func (g *GCSProvider) Upload(ctx context.Context, localPath, objectName string) (UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open artifact %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	key := path.Join(g.Prefix, objectName)
	wc := g.Client.Bucket(g.BucketName).Object(key).NewWriter(ctx)
	wc.ContentType = contentTypeFor(localPath)

	n, err := io.Copy(wc, f)
	if err != nil {
		// Even if the copy fails, close the writer to release resources.
		if closeErr := wc.Close(); closeErr != nil {
			logging.L.Warn("Failed to close GCS writer after copy failure", zap.Error(err), zap.Error(closeErr))
		}
		return UploadResult{}, fmt.Errorf("failed to write data to GCS object %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to close GCS writer for object %s: %w", key, err)
	}

	return UploadResult{
		RemoteURI: fmt.Sprintf("gs://%s/%s", g.BucketName, key),
		Bytes:     n,
	}, nil
}

func contentTypeFor(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
