// Package preflight probes the registry portal before a run commits to
// launching a browser. A dead or maintenance-mode portal fails the run in
// one cheap HTTP round trip instead of twenty minutes of element timeouts.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrUnreachable marks a portal that did not answer with a usable page.
var ErrUnreachable = errors.New("portal unreachable")

// ErrMaintenance marks a portal that answered with its maintenance notice.
var ErrMaintenance = errors.New("portal in maintenance window")

// The portal serves its maintenance notice as a regular 200 page; these
// markers identify it.
var maintenanceMarkers = []string{
	"시스템 점검",
	"서비스 점검",
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Checker issues the single bounded GET used as the reachability probe.
type Checker struct {
	timeout   time.Duration
	userAgent string
}

// Result describes what the probe saw.
type Result struct {
	StatusCode int
	Duration   time.Duration
}

// New builds a Checker. An empty userAgent falls back to a desktop Chrome
// string, matching what the browser session will present later.
func New(timeout time.Duration, userAgent string) *Checker {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Checker{timeout: timeout, userAgent: userAgent}
}

// Check fetches the portal landing page once and classifies the answer.
func (c *Checker) Check(ctx context.Context, url string) (Result, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.UserAgent = c.userAgent
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if c.timeout > 0 {
		collector.SetRequestTimeout(c.timeout)
	}

	var (
		status   int
		body     string
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("preflight canceled: %w", ctx.Err())
	case err := <-done:
		res := Result{StatusCode: status, Duration: time.Since(start)}
		if err != nil && fetchErr == nil {
			fetchErr = err
		}
		if fetchErr != nil {
			if status > 0 {
				return res, fmt.Errorf("%w: status %d: %v", ErrUnreachable, status, fetchErr)
			}
			return res, fmt.Errorf("%w: %v", ErrUnreachable, fetchErr)
		}
		if status >= 400 {
			return res, fmt.Errorf("%w: status %d", ErrUnreachable, status)
		}
		for _, marker := range maintenanceMarkers {
			if strings.Contains(body, marker) {
				return res, fmt.Errorf("%w: page contains %q", ErrMaintenance, marker)
			}
		}
		return res, nil
	}
}
