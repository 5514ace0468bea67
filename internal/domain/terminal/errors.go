package terminal

import "errors"

// Standard errors returned by terminal sessions.
var (
	// ErrPtyAllocation indicates the pseudo-terminal pair could not be created.
	ErrPtyAllocation = errors.New("pty allocation failed")

	// ErrSpawn indicates the shell could not be started on the PTY.
	ErrSpawn = errors.New("shell spawn failed")

	// ErrWriteFailed indicates input could not be delivered to the shell.
	ErrWriteFailed = errors.New("pty write failed")

	// ErrReadFailed indicates the PTY reader stopped on an error other than
	// end-of-stream. It closes the session and is only logged.
	ErrReadFailed = errors.New("pty read failed")

	// ErrSessionNotFound indicates no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates the session is closing or already closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidSize indicates a non-positive row or column count.
	ErrInvalidSize = errors.New("invalid terminal size")
)
