package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PortalURL:     "https://www.eais.go.kr/",
		DocTab:        "전유부",
		DownloadXPath: "//button[contains(., '발급')]",
		StepWait:      time.Second,
	}
}

// TestFetchRequiresReadySession rejects fetches before Start/Authenticate ran.
func TestFetchRequiresReadySession(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	out, err := d.FetchOne(context.Background(), "서울특별시 강남구 압구정동 1-1")
	require.Error(t, err)
	require.ErrorContains(t, err, "authenticated session")
	require.Equal(t, OutcomeFatal, out)
}

// TestAuthenticateRequiresStartedSession rejects authentication on a fresh driver.
func TestAuthenticateRequiresStartedSession(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	err := d.Authenticate(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "started session")
	require.Equal(t, StateFresh, d.State())
}

// TestUnattendedWithoutCredentials surfaces the sentinel error instead of hanging on stdin.
func TestUnattendedWithoutCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Unattended = true
	d := NewDriver(cfg, nil)
	d.state.Store(int32(StateStarting))

	err := d.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationRequired)
	require.Equal(t, StateStarting, d.State())
}

// TestManualLoginConfirmation advances to Ready once the operator confirms.
func TestManualLoginConfirmation(t *testing.T) {
	t.Parallel()

	called := false
	d := NewDriver(testConfig(), nil, WithConfirm(func(context.Context) error {
		called = true
		return nil
	}))
	d.state.Store(int32(StateStarting))

	require.NoError(t, d.Authenticate(context.Background()))
	require.True(t, called)
	require.Equal(t, StateReady, d.State())
}

// TestManualLoginConfirmationCanceled keeps the session out of Ready when the operator bails.
func TestManualLoginConfirmationCanceled(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil, WithConfirm(func(ctx context.Context) error {
		return context.Canceled
	}))
	d.state.Store(int32(StateStarting))

	err := d.Authenticate(context.Background())
	require.Error(t, err)
	require.Equal(t, StateStarting, d.State())
}

// TestFatalIsTerminal verifies no transition leaves the Fatal state.
func TestFatalIsTerminal(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	d.fail()
	require.Equal(t, StateFatal, d.State())

	require.Error(t, d.Start(context.Background()))
	require.Equal(t, StateFatal, d.State())

	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, StateFatal, d.State())
}

// TestCloseBeforeStart is a no-op besides marking the session closed.
func TestCloseBeforeStart(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, StateClosed, d.State())

	out, err := d.FetchOne(context.Background(), "압구정동 1-1")
	require.Error(t, err)
	require.Equal(t, OutcomeFatal, out)

	require.NoError(t, d.Close(context.Background()))
}

// TestClassifyDeadBrowser maps a dead browser context to a fatal outcome.
func TestClassifyDeadBrowser(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	d.state.Store(int32(StateReady))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.browserCtx = ctx

	out, err := d.classify(context.Background(), context.Canceled)
	require.Error(t, err)
	require.ErrorContains(t, err, "browser session lost")
	require.Equal(t, OutcomeFatal, out)
	require.Equal(t, StateFatal, d.State())
}

// TestClassifyRunCanceled maps caller cancellation to a fatal outcome.
func TestClassifyRunCanceled(t *testing.T) {
	t.Parallel()

	d := NewDriver(testConfig(), nil)
	d.state.Store(int32(StateReady))
	d.browserCtx = context.Background()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := d.classify(canceled, context.Canceled)
	require.Error(t, err)
	require.ErrorContains(t, err, "run canceled")
	require.Equal(t, OutcomeFatal, out)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "fresh", StateFresh.String())
	require.Equal(t, "ready", StateReady.String())
	require.Equal(t, "fatal", StateFatal.String())
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", OutcomeSuccess.String())
	require.Equal(t, "soft_failure", OutcomeSoft.String())
	require.Equal(t, "session_fatal", OutcomeFatal.String())
}
