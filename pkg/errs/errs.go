// Package errs defines the error taxonomy shared by the search client, the
// cache layer and the command surface.
//
// Every error produced by those layers can be classified with errors.Is
// against one of the sentinel kinds:
//
//	if errors.Is(err, errs.ErrNetwork) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// KindNetwork is a transport failure or timeout.
	KindNetwork Kind = "network"
	// KindAPI is a non-2xx or quota-exhausted API response.
	KindAPI Kind = "api"
	// KindIO is a cache or icon storage failure.
	KindIO Kind = "io"
	// KindNotFound means the requested resource (usually a site) is unknown.
	KindNotFound Kind = "not_found"
)

// Sentinels matched by errors.Is for each Kind.
var (
	ErrNetwork  = errors.New("network error")
	ErrAPI      = errors.New("api error")
	ErrIO       = errors.New("io error")
	ErrNotFound = errors.New("not found")
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target
}

func sentinel(k Kind) error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAPI:
		return ErrAPI
	case KindIO:
		return ErrIO
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Network wraps a transport failure.
func Network(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// IO wraps a storage failure.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// NotFound reports an unknown resource.
func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("%s not found", what)}
}

// KindOf returns the Kind of err, or "" if err is unclassified.
func KindOf(err error) Kind {
	var ae *APIError
	if errors.As(err, &ae) {
		return KindAPI
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
