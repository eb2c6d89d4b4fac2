package resilience

import (
	"errors"
	"net"
	"syscall"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
)

// IsRecoverable reports whether an error is worth a second attempt at the
// same scope. Staleness and network flaps are; a bounded wait that timed
// out or a selector that matched nothing will not get better by reloading
// the same page, so those fail fast.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrNotFound) {
		return false
	}
	if errors.Is(err, browser.ErrStale) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Anything else on a rendered page is assumed to be transient DOM
	// instability and earns the one retry the attempt budget allows.
	return true
}
