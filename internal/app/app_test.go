// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seumter-tools/registry-archiver/internal/app"
	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/ledger"
	"github.com/seumter-tools/registry-archiver/internal/logging"
	"github.com/seumter-tools/registry-archiver/internal/notify"
	"github.com/seumter-tools/registry-archiver/internal/source"
	"github.com/seumter-tools/registry-archiver/internal/storage"
)

func TestMain(m *testing.M) {
	// Initialize the logger for all tests in this package.
	logging.InitLogger()
	m.Run()
}

// testConfig wires every provider to an in-memory or no-op backend so
// NewApp needs neither network nor credentials.
func testConfig() config.Config {
	return config.Config{
		Source:  config.SourceConfig{Provider: "excel", Path: "worklist.xlsx", Column: "주소"},
		Ledger:  config.LedgerConfig{Provider: "memory"},
		Storage: config.StorageConfig{Provider: "noop"},
		Notify:  config.NotifyConfig{Provider: "noop"},
	}
}

func TestNewAppDefaults(t *testing.T) {
	a, err := app.NewApp(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetEmitter())
	assert.NotNil(t, a.GetTracker())
	assert.NotNil(t, a.GetRegistry())
	assert.IsType(t, &source.ExcelProvider{}, a.GetSource())
	assert.IsType(t, &ledger.MemoryProvider{}, a.GetLedger())
	assert.IsType(t, &storage.NoOpProvider{}, a.GetStorage())
	assert.IsType(t, &notify.NoOpProvider{}, a.GetNotifier())

	a.Close()
	// A second Close must be a no-op, not a second shutdown.
	a.Close()
}

func TestNewAppFileLedger(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger = config.LedgerConfig{Provider: "file", Path: filepath.Join(t.TempDir(), "processed.txt")}

	a, err := app.NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	done, err := a.GetLedger().Completed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestNewAppLocalStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = config.StorageConfig{
		Provider: "local",
		Local:    config.LocalStorageConfig{BaseDir: t.TempDir()},
	}

	a, err := app.NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.LocalProvider{}, a.GetStorage())
}

func TestNewAppProviderErrors(t *testing.T) {
	testCases := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{
			name:          "unknown source provider",
			mutate:        func(c *config.Config) { c.Source.Provider = "unknown" },
			expectedError: "unknown source provider: unknown",
		},
		{
			name:          "unknown ledger provider",
			mutate:        func(c *config.Config) { c.Ledger.Provider = "unknown" },
			expectedError: "unknown ledger provider: unknown",
		},
		{
			name:          "unknown storage provider",
			mutate:        func(c *config.Config) { c.Storage.Provider = "unknown" },
			expectedError: "unknown storage provider: unknown",
		},
		{
			name:          "unknown notify provider",
			mutate:        func(c *config.Config) { c.Notify.Provider = "unknown" },
			expectedError: "unknown notify provider: unknown",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			_, err := app.NewApp(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedError)
		})
	}
}

func TestBuildSourceUnknown(t *testing.T) {
	_, err := app.BuildSource(config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source provider")
}

func TestBuildLedgerUnknown(t *testing.T) {
	_, err := app.BuildLedger(context.Background(), config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger provider")
}
