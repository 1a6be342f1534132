// Package session drives an authenticated Chrome session against the
// building-registry portal via chromedp.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// ErrAuthenticationRequired indicates an unattended run has no portal credentials.
var ErrAuthenticationRequired = errors.New("portal credentials required for unattended run")

// Portal selectors. The portal is a Vue application; the search box is either
// the labeled address input or the multiselect shell around it, and the
// eleasticSearch id carries the portal's own spelling.
const (
	loginEntryXPath  = "//button[contains(text(), '로그인')] | //a[contains(text(), '로그인')]"
	logoutXPath      = "//button[contains(text(), '로그아웃')]"
	idInputSel       = "#id_input_id"
	pwInputSel       = "#pw_input_id"
	loginSubmitSel   = "#login_submit_btn"
	searchInputXPath = "//input[@placeholder='건축물 소재지를 입력하세요.'] | //input[contains(@class, 'multiselect__input')]"
	searchBtnXPath   = "//div[@id='eleasticSearch']//button"
)

// Pacing the portal tolerates. Typing or navigating faster than this makes
// the search widget drop keystrokes.
const (
	clearSettle   = 500 * time.Millisecond
	typeSettle    = time.Second
	resultsSettle = 3 * time.Second
	tabSettle     = 2 * time.Second
	probeWait     = 2 * time.Second
	shotWait      = 5 * time.Second
)

const (
	loginShotName = "login_failed.png"
	errorShotName = "error_screenshot.png"
)

// State tracks the session lifecycle.
type State int32

// Session lifecycle states. Starting covers launch through login; Fatal is
// terminal and reachable from any non-terminal state.
const (
	StateFresh State = iota
	StateStarting
	StateReady
	StateClosed
	StateFatal
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome classifies how fetching one address ended.
type Outcome int

// Fetch outcomes. Soft failures skip the address; fatal outcomes end the run.
const (
	OutcomeSuccess Outcome = iota
	OutcomeSoft
	OutcomeFatal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoft:
		return "soft_failure"
	case OutcomeFatal:
		return "session_fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config controls the browser session and the portal interaction.
type Config struct {
	PortalURL     string
	Username      string
	Password      string
	DocTab        string
	DownloadXPath string
	StepWait      time.Duration
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	DownloadDir   string
	ScreenshotDir string
	Unattended    bool
	KeepOpen      bool
}

// ConfirmFunc blocks until the operator confirms the manual login is done.
type ConfirmFunc func(ctx context.Context) error

// Option customizes a Driver.
type Option func(*Driver)

// WithConfirm replaces the operator-confirmation hook used for manual logins.
func WithConfirm(fn ConfirmFunc) Option {
	return func(d *Driver) {
		if fn != nil {
			d.confirm = fn
		}
	}
}

// Driver owns one Chrome session and walks it through the portal flow.
type Driver struct {
	cfg     Config
	logger  *zap.Logger
	confirm ConfirmFunc

	state atomic.Int32

	downloadDir   string
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewDriver creates a Driver in the Fresh state. Nothing launches until Start.
func NewDriver(cfg Config, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StepWait <= 0 {
		cfg.StepWait = 20 * time.Second
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1920
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 1080
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = "."
	}
	d := &Driver{
		cfg:     cfg,
		logger:  logger,
		confirm: stdinConfirm,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Start launches Chrome, routes downloads to the configured directory, and
// opens the portal landing page. Failures are fatal for the session.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.transition(StateFresh, StateStarting); err != nil {
		return err
	}

	downloadDir, err := filepath.Abs(d.cfg.DownloadDir)
	if err != nil {
		d.fail()
		return fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		d.fail()
		return fmt.Errorf("create download dir: %w", err)
	}
	d.downloadDir = downloadDir

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", d.cfg.WindowWidth, d.cfg.WindowHeight)),
		chromedp.Flag("disable-gpu", true),
	)
	if d.cfg.Headless {
		opts = append(opts,
			chromedp.Flag("headless", "new"),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		d.fail()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel

	if err := d.runStep(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate(d.cfg.PortalURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		d.fail()
		return fmt.Errorf("open portal %s: %w", d.cfg.PortalURL, err)
	}

	d.logger.Info("portal session started",
		zap.String("url", d.cfg.PortalURL),
		zap.String("download_dir", downloadDir),
		zap.Bool("headless", d.cfg.Headless),
	)
	return nil
}

// Authenticate logs the session in. With configured credentials it performs
// the portal login flow and verifies the logout control appears. Without
// credentials an unattended run fails, while an attended run defers to the
// operator-confirmation hook (manual login in the visible browser).
func (d *Driver) Authenticate(ctx context.Context) error {
	if cur := d.State(); cur != StateStarting {
		return fmt.Errorf("authenticate requires a started session (state %s)", cur)
	}

	if d.cfg.Username == "" || d.cfg.Password == "" {
		if d.cfg.Unattended {
			return ErrAuthenticationRequired
		}
		d.logger.Info("no credentials configured, waiting for manual login")
		if err := d.confirm(ctx); err != nil {
			return fmt.Errorf("manual login confirmation: %w", err)
		}
		return d.transition(StateStarting, StateReady)
	}

	d.logger.Info("attempting automated login")
	if err := d.login(ctx); err != nil {
		d.captureScreenshot(loginShotName)
		d.fail()
		return fmt.Errorf("portal login: %w", err)
	}
	d.logger.Info("login succeeded")
	return d.transition(StateStarting, StateReady)
}

func (d *Driver) login(ctx context.Context) error {
	if err := d.runStep(ctx, chromedp.Click(loginEntryXPath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("open login form: %w", err)
	}
	if err := d.runStep(ctx,
		chromedp.WaitReady(idInputSel, chromedp.ByQuery),
		chromedp.Clear(idInputSel, chromedp.ByQuery),
		chromedp.SendKeys(idInputSel, d.cfg.Username, chromedp.ByQuery),
		chromedp.Clear(pwInputSel, chromedp.ByQuery),
		chromedp.SendKeys(pwInputSel, d.cfg.Password, chromedp.ByQuery),
		chromedp.Click(loginSubmitSel, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}
	if err := d.runStep(ctx, chromedp.WaitReady(logoutXPath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("confirm login: %w", err)
	}
	return nil
}

// FetchOne searches one address and triggers the document issue control. The
// download itself lands asynchronously in the download directory; callers
// diff that directory to find it.
func (d *Driver) FetchOne(ctx context.Context, addr string) (Outcome, error) {
	if cur := d.State(); cur != StateReady {
		return OutcomeFatal, fmt.Errorf("fetch requires an authenticated session (state %s)", cur)
	}

	if err := d.runStep(ctx, chromedp.WaitReady(searchInputXPath, chromedp.BySearch)); err != nil {
		return d.classify(ctx, fmt.Errorf("locate search input: %w", err))
	}
	if err := d.runStep(ctx,
		chromedp.Focus(searchInputXPath, chromedp.BySearch),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
		chromedp.Sleep(clearSettle),
		chromedp.SendKeys(searchInputXPath, addr, chromedp.BySearch),
		chromedp.Sleep(typeSettle),
		chromedp.KeyEvent(kb.Enter),
	); err != nil {
		return d.classify(ctx, fmt.Errorf("enter address query: %w", err))
	}

	// The dedicated search button only exists on some portal layouts.
	d.bestEffortClick(ctx, searchBtnXPath, probeWait)
	if err := d.runStep(ctx, chromedp.Sleep(resultsSettle)); err != nil {
		return d.classify(ctx, fmt.Errorf("await results: %w", err))
	}
	d.selectDocTab(ctx)

	if err := d.runStep(ctx, chromedp.Click(d.cfg.DownloadXPath, chromedp.BySearch)); err != nil {
		return d.classify(ctx, fmt.Errorf("trigger document issue: %w", err))
	}
	return OutcomeSuccess, nil
}

// selectDocTab clicks the configured document tab. The tab is absent when the
// search lands directly on the document view, so misses are only logged.
func (d *Driver) selectDocTab(ctx context.Context) {
	if d.cfg.DocTab == "" {
		return
	}
	xpath := fmt.Sprintf("//a[contains(text(), '%s')]", d.cfg.DocTab)
	if err := d.runStep(ctx, chromedp.Click(xpath, chromedp.BySearch), chromedp.Sleep(tabSettle)); err != nil {
		d.logger.Debug("document tab absent or already selected",
			zap.String("tab", d.cfg.DocTab),
			zap.Error(err),
		)
	}
}

// Close releases the browser unless the session is configured to stay open
// for inspection after an attended run.
func (d *Driver) Close(ctx context.Context) error {
	cur := d.State()
	if cur == StateClosed {
		return nil
	}
	if cur != StateFatal {
		d.state.Store(int32(StateClosed))
	}
	if d.browserCancel == nil {
		return nil
	}
	if d.cfg.KeepOpen && !d.cfg.Headless {
		d.logger.Info("leaving browser open for inspection")
		return nil
	}
	d.browserCancel()
	d.allocCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

// classify sorts a step failure into soft or fatal. A dead browser context, a
// canceled run, or a portal that dropped back to its login view all end the
// session; anything else skips just this address.
func (d *Driver) classify(ctx context.Context, err error) (Outcome, error) {
	if d.browserCtx == nil || d.browserCtx.Err() != nil {
		d.fail()
		return OutcomeFatal, fmt.Errorf("browser session lost: %w", err)
	}
	if ctx.Err() != nil {
		d.fail()
		return OutcomeFatal, fmt.Errorf("run canceled: %w", err)
	}
	if d.loginLost() {
		d.captureScreenshot(errorShotName)
		d.fail()
		return OutcomeFatal, fmt.Errorf("portal session logged out: %w", err)
	}
	return OutcomeSoft, err
}

// loginLost reports whether the portal is showing its login control again.
func (d *Driver) loginLost() bool {
	probeCtx, cancel := context.WithTimeout(d.browserCtx, probeWait)
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(probeCtx,
		chromedp.Nodes(loginEntryXPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	); err != nil {
		return false
	}
	return len(nodes) > 0
}

func (d *Driver) captureScreenshot(name string) {
	if d.browserCtx == nil || d.browserCtx.Err() != nil {
		return
	}
	shotCtx, cancel := context.WithTimeout(d.browserCtx, shotWait)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		d.logger.Warn("screenshot capture failed", zap.String("name", name), zap.Error(err))
		return
	}
	path := filepath.Join(d.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		d.logger.Warn("screenshot write failed", zap.String("path", path), zap.Error(err))
		return
	}
	d.logger.Info("diagnostic screenshot captured", zap.String("path", path))
}

// runStep executes chromedp actions bounded by the per-step wait, honoring
// cancellation from the caller's context.
func (d *Driver) runStep(parent context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(d.browserCtx, d.cfg.StepWait)
	defer cancel()
	stop := forwardCancel(parent, cancel)
	defer stop()
	return chromedp.Run(stepCtx, actions...)
}

// bestEffortClick clicks within a short window and ignores misses.
func (d *Driver) bestEffortClick(parent context.Context, xpath string, wait time.Duration) {
	stepCtx, cancel := context.WithTimeout(d.browserCtx, wait)
	defer cancel()
	stop := forwardCancel(parent, cancel)
	defer stop()
	_ = chromedp.Run(stepCtx, chromedp.Click(xpath, chromedp.BySearch))
}

func (d *Driver) transition(from, to State) error {
	if !d.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("invalid session transition %s -> %s (state %s)", from, to, d.State())
	}
	return nil
}

// fail moves the session to the terminal Fatal state.
func (d *Driver) fail() {
	for {
		cur := d.State()
		if cur == StateClosed || cur == StateFatal {
			return
		}
		if d.state.CompareAndSwap(int32(cur), int32(StateFatal)) {
			return
		}
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// stdinConfirm is the default manual-login hook: prompt the operator and
// block until they press enter in the terminal.
func stdinConfirm(ctx context.Context) error {
	fmt.Println("로그인이 완료되고 주소 검색 준비가 되면 엔터키를 눌러주세요.")
	done := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		_, err := reader.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
