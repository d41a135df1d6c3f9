// Package remote talks to the account service that logins are performed against.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Client is one logged-in (or logging-in) session with the remote service. A
// Client is bound to a single proxy for its whole life and is not safe for
// concurrent use.
type Client interface {
	Login(ctx context.Context, username, password string) error
	// FetchFeed performs a cheap authenticated call, used to validate a restored session.
	FetchFeed(ctx context.Context) error
	DumpSettings() ([]byte, error)
	LoadSettings(blob []byte) error
}

// Factory builds a fresh Client routed through proxy. An empty proxy means a
// direct connection.
type Factory func(proxy string) (Client, error)

var (
	ErrChallengeRequired = errors.New("challenge required")
	ErrBadPassword       = errors.New("bad password")
	ErrLoginRequired     = errors.New("login required")
)

// UnknownError is a failure reported by the service that is not otherwise classified.
type UnknownError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *UnknownError) Error() string {
	switch {
	case e.Type != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	case e.Message != "":
		return e.Message
	case e.Type != "":
		return e.Type
	default:
		return fmt.Sprintf("unexpected response (HTTP %d)", e.StatusCode)
	}
}

// NetworkError wraps transport failures: proxy errors, refused connections, timeouts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
