// Package perr defines the error taxonomy shared by every pqx component.
//
// Every error that crosses a package boundary is wrapped in an *Error
// carrying one of the Kinds below, so callers can branch on errors.As
// instead of string-matching messages.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	// ProtocolError means the broker rejected a method call; the channel is
	// typically unusable afterwards.
	ProtocolError Kind = "protocol"
	// ConnectionLost means the AMQP transport died; the worker should stop
	// and be restarted by its supervisor.
	ConnectionLost Kind = "connection_lost"
	// Deserialisation means a delivery body could not be parsed as a Command.
	Deserialisation Kind = "deserialisation"
	// Execution means a child process failed to spawn, read, or exited
	// non-zero in a way the classifier surfaces as an error.
	Execution Kind = "execution"
	// Timeout means an execution exceeded x-consume-ttl.
	Timeout Kind = "timeout"
	// Persistence means a history/result write failed.
	Persistence Kind = "persistence"
	// Config means a header or config value was missing or malformed.
	Config Kind = "config"
)

// Error is the concrete error type returned by pqx packages.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "mq.Publisher.Publish"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) under op/kind. It returns nil if err is
// nil, so it composes with the common `if err != nil { return perr.New(...) }`
// idiom without an extra branch at call sites that already guard on err.
func New(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
