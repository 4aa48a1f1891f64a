// Package jcodeerr defines the shared error taxonomy used across the
// server, session, and wire layers so that every subsystem reports
// failures the same way instead of re-declaring its own error kind
// per package.
package jcodeerr

import (
	"errors"
	"fmt"
)

// Kind is the stable error classification surfaced to clients via the
// wire protocol's error{id, message, kind} event.
type Kind string

const (
	ProtocolDecode    Kind = "protocol_decode"
	ProtocolVersion   Kind = "protocol_version"
	SessionNotFound   Kind = "session_not_found"
	SessionBusy       Kind = "session_busy"
	ProviderTransient Kind = "provider_transient"
	ProviderFatal     Kind = "provider_fatal"
	ToolUser          Kind = "tool_user"
	ToolInfra         Kind = "tool_infra"
	PersistenceIO     Kind = "persistence_io"
	TransportBroken   Kind = "transport_broken"
	ServerFatal       Kind = "server_fatal"
)

// Error is a taxonomy-tagged error that composes with errors.Is/As via
// Unwrap, so a caller can check a stable Kind without losing the
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Construction helpers, one per taxonomy kind (§7).

func Decode(err error, format string, args ...any) *Error {
	return wrap(ProtocolDecode, err, format, args...)
}

func Version(format string, args ...any) *Error {
	return newf(ProtocolVersion, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(SessionNotFound, format, args...)
}

func Busy(format string, args ...any) *Error {
	return newf(SessionBusy, format, args...)
}

func Transient(err error, format string, args ...any) *Error {
	return wrap(ProviderTransient, err, format, args...)
}

func Fatal(err error, format string, args ...any) *Error {
	return wrap(ProviderFatal, err, format, args...)
}

func UserTool(format string, args ...any) *Error {
	return newf(ToolUser, format, args...)
}

func Infra(err error, format string, args ...any) *Error {
	return wrap(ToolInfra, err, format, args...)
}

func Persistence(err error, format string, args ...any) *Error {
	return wrap(PersistenceIO, err, format, args...)
}

func Transport(err error, format string, args ...any) *Error {
	return wrap(TransportBroken, err, format, args...)
}

func ServerFatalf(err error, format string, args ...any) *Error {
	return wrap(ServerFatal, err, format, args...)
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
