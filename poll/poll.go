// Package poll provides the readiness-notification primitive for an
// event-driven server: it tracks interest in a set of file descriptors,
// blocks until some become readable, writable or report an error condition,
// and hands the ready descriptors back one at a time.
//
// The package never owns a descriptor. Opening and closing fds is the
// caller's job; a fd must be removed from the multiplexer before it is
// closed, the multiplexer does not observe closure.
package poll

import (
	"errors"
	"time"
)

// Event is one ready descriptor together with the backend event bits that
// fired for it.
type Event struct {
	Fd     int
	Events uint32
}

// Backend describes the capabilities of a readiness-polling mechanism.
// The event bit values are mechanism specific; they are only guaranteed to
// be distinct, non-zero and combinable by bitwise OR. Code that drives a
// Multiplexer must build interest masks from these accessors, never from
// literal constants, so it works unchanged across backends.
type Backend interface {
	// ReadEvent returns the bit requesting read readiness.
	ReadEvent() uint32

	// WriteEvent returns the bit requesting write readiness.
	WriteEvent() uint32

	// ErrorEvent returns the bit requesting error conditions. Only
	// meaningful when HasErrorEvents reports true.
	ErrorEvent() uint32

	// InvalidFd returns the sentinel value meaning "no descriptor".
	InvalidFd() int

	// HasErrorEvents reports whether the mechanism can report error
	// conditions distinctly from read/write readiness. Callers must
	// tolerate a multiplexer that only ever reports read/write.
	HasErrorEvents() bool

	// Name returns a stable identifier for diagnostics and selection.
	Name() string
}

// Multiplexer is a readiness multiplexer: a registration table of fds and
// a blocking "which fds are ready now" query over it.
//
// Instances are not safe for concurrent use. Wait blocks the calling
// goroutine; registration changes and the GetEvent drain must be serialized
// with it by the caller.
type Multiplexer interface {
	Backend

	// Add registers fd with the given interest mask. Re-adding an fd adds
	// the requested event bits and overwrites the stored mask; it never
	// narrows interest (use Modify for that).
	Add(fd int, events uint32) error

	// Modify makes the fd's interest exactly the given mask, adding the
	// bits that are set and dropping the ones that are not. A zero mask
	// clears all interest while leaving the fd registered.
	Modify(fd int, events uint32) error

	// Remove drops a registered fd from the table and from all interest
	// categories. Removing an fd that was never added is an error.
	Remove(fd int) error

	// Wait blocks until at least one registered fd is ready or the
	// configured timeout elapses, and returns the number of ready fds.
	// An interrupted wait with no fd state change is reported as zero,
	// not as an error.
	Wait() (int, error)

	// GetEvent pulls the next ready (fd, events) pair out of the batch
	// produced by the last positive Wait. The second result is false once
	// the batch is exhausted. Calling it with no batch pending, or with an
	// empty registration table, returns ErrNoBatch.
	GetEvent() (Event, bool, error)

	// SetTimeout bounds the blocking duration of subsequent Wait calls.
	// Zero makes Wait a non-blocking poll. The value persists until
	// changed again.
	SetTimeout(d time.Duration)

	// Close releases whatever the mechanism holds. It does not close any
	// registered fd.
	Close() error
}

var (
	// ErrEmptyMask is returned by Add when the interest mask selects no
	// event category.
	ErrEmptyMask = errors.New("poll: empty interest mask")

	// ErrBadFd is returned when an operation is given the invalid-fd
	// sentinel or a descriptor the mechanism cannot watch.
	ErrBadFd = errors.New("poll: bad file descriptor")

	// ErrNotRegistered is returned by Remove for an fd that is not in the
	// registration table.
	ErrNotRegistered = errors.New("poll: fd not registered")

	// ErrNoBatch is returned by GetEvent when no positive Wait result is
	// pending, or the registration table is empty.
	ErrNoBatch = errors.New("poll: no ready batch to drain")

	// ErrBackend wraps a mechanism-level wait failure. These are not
	// retried internally; the caller decides whether to retry, degrade or
	// terminate.
	ErrBackend = errors.New("poll: backend failure")
)
