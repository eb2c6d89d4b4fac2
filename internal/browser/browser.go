// Package browser abstracts the rendered-page session the scraper drives.
// The production implementation runs headless Chrome via chromedp; tests
// substitute a fake session serving fixture documents.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel errors surfaced by Session implementations. Callers branch on
// these with errors.Is to decide between retry, default, and skip.
var (
	// ErrNotFound means a selector matched nothing.
	ErrNotFound = errors.New("browser: element not found")

	// ErrTimeout means a bounded wait elapsed before the condition held.
	ErrTimeout = errors.New("browser: wait timed out")

	// ErrStale means the page mutated between a wait and a read, so the
	// observed DOM can no longer be trusted.
	ErrStale = errors.New("browser: stale document")
)

// SessionError wraps a driver-level failure (browser would not start,
// navigation hard-failed). It is fatal for the run that owns the session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser: session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Session is one exclusive browser document context. It has exactly one
// active page at a time and must not be shared across concurrent runs.
type Session interface {
	// Navigate loads the given URL in the session's document context.
	Navigate(ctx context.Context, url string) error

	// WaitReady blocks until at least one element matches selector, up
	// to timeout. Returns ErrTimeout when the bound elapses.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error

	// Click clicks the first element matching selector. Returns
	// ErrNotFound when nothing matches.
	Click(ctx context.Context, selector string) error

	// ClickText clicks the first anchor or span whose text contains any
	// of the given fragments. Reports whether a click happened; absence
	// of a matching element is not an error.
	ClickText(ctx context.Context, fragments ...string) (bool, error)

	// ScrollBottom scrolls the page to its bottom to trigger lazy loads.
	ScrollBottom(ctx context.Context) error

	// Document snapshots the current DOM for read-only traversal.
	Document(ctx context.Context) (*goquery.Document, error)

	// Close tears the session down. Safe to call on a broken session.
	Close(ctx context.Context) error
}
