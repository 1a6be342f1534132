// Package storage defines the interfaces for archiving downloaded documents.
package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

// Upload is the mock implementation of the Upload method.
func (m *MockProvider) Upload(ctx context.Context, localPath, objectName string) (UploadResult, error) {
	args := m.Called(ctx, localPath, objectName)
	return args.Get(0).(UploadResult), args.Error(1) //nolint:wrapcheck
}
