package proxy

import (
	"context"
	"errors"
	"net"
)

// FailureKind classifies why a probe attempt failed. Only KindConnector lets the
// prober move on to the next protocol candidate.
type FailureKind int

const (
	// KindConnector: the proxy accepted TCP but the protocol exchange failed.
	KindConnector FailureKind = iota
	// KindProxyConnect: the proxy itself could not be reached.
	KindProxyConnect
	// KindProxyRejected: the proxy refused the tunnel (auth required, forbidden, ...).
	KindProxyRejected
	// KindTimeout: the probe ran out of time.
	KindTimeout
)

func (k FailureKind) String() string {
	switch k {
	case KindProxyConnect:
		return "proxy_connect"
	case KindProxyRejected:
		return "proxy_rejected"
	case KindTimeout:
		return "timeout"
	default:
		return "connector"
	}
}

// ProbeError is returned by the probe dialers.
type ProbeError struct {
	Kind FailureKind
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Kind == KindTimeout {
		return "connection timeout"
	}
	return e.Err.Error()
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Retryable reports whether another protocol candidate should be tried.
func (e *ProbeError) Retryable() bool {
	return e.Kind == KindConnector
}

// classify maps any error from a probe attempt onto a ProbeError.
func classify(err error) *ProbeError {
	if isTimeout(err) {
		return &ProbeError{Kind: KindTimeout, Err: err}
	}
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe
	}
	// Anything else happened after the tunnel was up (TLS, HTTP exchange).
	return &ProbeError{Kind: KindConnector, Err: err}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
