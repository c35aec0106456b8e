package request

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrCancelled is the default reason a cancelled in-flight request rejects
// its subscribers with.
var ErrCancelled = errors.New("request cancelled")

// ErrNoCredentials is returned for authenticated requests when no access
// token is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// StatusError is a well-formed server response with a failure status code.
// 5xx codes are transient (retryable); other codes propagate immediately.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Transient reports whether the failure class is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code >= 500
}

// TransportError wraps a failure that produced no HTTP response at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// OfflinePolicy is the explicit, configurable classification of errors as
// offline (queue and retry later) versus server-rejected (surface and drop).
type OfflinePolicy struct {
	// Connectivity reports the currently known connectivity; nil means
	// unknown and skips the check.
	Connectivity func() bool
	// Markers are error-message substrings classified as offline. Checked
	// last, after the structured checks.
	Markers []string
}

// Offline classifies err. An error is offline when connectivity is known to
// be down, the error is network-layer (net.Error, connection refused/reset),
// it is a transport error carrying no HTTP response, or its message contains
// a configured marker. Everything else, including 5xx responses, is a server
// error.
func (p OfflinePolicy) Offline(err error) bool {
	if err == nil {
		return false
	}
	if p.Connectivity != nil && !p.Connectivity() {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// A response arrived, so the network is up.
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range p.Markers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
