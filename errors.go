package jcode

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrSessionBusy indicates a message request arrived while the
	// session's turn slot was already held (§4.5, §8 "one active turn").
	ErrSessionBusy = errors.New("session busy: a turn is already in progress")

	// ErrSessionNotFound indicates an operation named a session id the
	// Session Manager does not hold.
	ErrSessionNotFound = errors.New("session not found")
)
