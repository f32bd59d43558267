//go:build linux
// +build linux

package poll

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Interest bits of the select backend. Mechanism specific: the epoll
// backend reuses the kernel EPOLL* values instead.
const (
	SelRead  uint32 = 0x1
	SelWrite uint32 = 0x2
	SelError uint32 = 0x4

	selAll = SelRead | SelWrite | SelError
)

const invalidFd = -1

// Select is the bitmask-polling reference backend, built on select(2).
//
// It keeps one fd_set plus an ordered member set per event category, and
// answers Wait by handing select a scratch copy of the three bitmasks:
// select overwrites its input in place to mark the ready members, so the
// live registration state is never touched by the query itself. The ready
// batch is then drained through GetEvent, which walks the registered fds in
// ascending order and tests each against the scratch sets.
type Select struct {
	reg *registry

	read   *category
	write  *category
	except *category

	// scratch snapshot handed to select(2), clobbered by every call
	scratchR unix.FdSet
	scratchW unix.FdSet
	scratchE unix.FdSet

	timeout unix.Timeval

	drain   []int
	drainAt int
	batch   bool
}

var _ Multiplexer = (*Select)(nil)

// NewSelect returns an empty multiplexer with a zero timeout, so Wait
// starts out as a non-blocking poll.
func NewSelect() *Select {
	return &Select{
		reg:    newRegistry(),
		read:   newCategory(),
		write:  newCategory(),
		except: newCategory(),
	}
}

func (s *Select) ReadEvent() uint32 { return SelRead }

func (s *Select) WriteEvent() uint32 { return SelWrite }

func (s *Select) ErrorEvent() uint32 { return SelError }

func (s *Select) InvalidFd() int { return invalidFd }

func (s *Select) HasErrorEvents() bool { return true }

func (s *Select) Name() string { return "select" }

func (s *Select) checkFd(fd int) error {
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return fmt.Errorf("%w: %d", ErrBadFd, fd)
	}
	return nil
}

// Add registers fd for every event bit set in events and records the mask
// as the fd's stored registration. Adding bits an earlier Add already set
// is idempotent on the category sets; the stored mask is last-write-wins.
func (s *Select) Add(fd int, events uint32) error {
	if err := s.checkFd(fd); err != nil {
		return err
	}
	if events&selAll == 0 {
		return ErrEmptyMask
	}

	if events&SelRead != 0 {
		s.read.add(fd)
	}
	if events&SelWrite != 0 {
		s.write.add(fd)
	}
	if events&SelError != 0 {
		s.except.add(fd)
	}

	s.reg.put(fd, events)
	return nil
}

// Modify makes fd's effective interest exactly events. It is the only
// operation that can narrow interest: every bit absent from events has its
// category membership dropped, recomputing that category's maximum when fd
// was it. A zero mask clears all three categories but leaves the table
// entry in place until Remove; such an inert registration is never found
// ready and is skipped by the drain's zero-mask filter.
func (s *Select) Modify(fd int, events uint32) error {
	if err := s.checkFd(fd); err != nil {
		return err
	}

	// bits outside the three categories carry no interest; a mask made
	// only of them narrows everything, like zero
	events &= selAll

	if events != 0 {
		if err := s.Add(fd, events); err != nil {
			return err
		}
	}

	if events&SelRead == 0 {
		s.read.clear(fd)
	}
	if events&SelWrite == 0 {
		s.write.clear(fd)
	}
	if events&SelError == 0 {
		s.except.clear(fd)
	}
	return nil
}

// Remove drops fd from all categories and from the registration table, and
// resets the drain cursor to the start of the remaining table.
func (s *Select) Remove(fd int) error {
	if !s.reg.has(fd) {
		return fmt.Errorf("%w: %d", ErrNotRegistered, fd)
	}

	s.read.clear(fd)
	s.write.clear(fd)
	s.except.clear(fd)
	s.reg.remove(fd)
	s.resetDrain()
	return nil
}

// Wait blocks until a registered fd becomes ready or the configured timeout
// elapses, and returns the number of distinct ready fds. With nothing
// registered it degenerates to a plain timeout sleep. An EINTR wake-up is
// normalized to a zero result; any other select failure wraps ErrBackend
// and must be treated as a contract violation, not retried.
func (s *Select) Wait() (int, error) {
	s.scratchR = s.read.fds
	s.scratchW = s.write.fds
	s.scratchE = s.except.fds

	nfds := 0
	if hi := maxFd3(s.read.maxFd, s.write.maxFd, s.except.maxFd); hi != invalidFd {
		nfds = hi + 1
	}

	// select may clobber the timeval; the configured value must persist
	tv := s.timeout

	n, err := unix.Select(nfds, &s.scratchR, &s.scratchW, &s.scratchE, &tv)
	if err != nil {
		if err == unix.EINTR {
			// benign interruption, but the scratch sets were already
			// clobbered: any earlier batch is gone
			s.batch = false
			return 0, nil
		}
		s.batch = false
		return -1, fmt.Errorf("%w: %v", ErrBackend, os.NewSyscallError("select", err))
	}

	if n > 0 {
		s.resetDrain()
		// select counts per bit; the contract counts each fd once
		n = s.readyCount()
	}
	s.batch = n > 0
	return n, nil
}

// GetEvent advances the drain cursor through the registration table in
// ascending fd order, returning the next fd with a non-zero ready mask.
// The second result is false once the batch is exhausted; the drain is not
// restartable without another Wait.
func (s *Select) GetEvent() (Event, bool, error) {
	if s.reg.len() == 0 || !s.batch {
		return Event{}, false, ErrNoBatch
	}

	for s.drainAt < len(s.drain) {
		fd := s.drain[s.drainAt]
		s.drainAt++

		if events := s.readyEvents(fd); events != 0 {
			return Event{Fd: fd, Events: events}, true, nil
		}
	}
	return Event{}, false, nil
}

// SetTimeout stores the blocking bound for subsequent Wait calls, split
// into whole seconds and the sub-second remainder.
func (s *Select) SetTimeout(d time.Duration) {
	s.timeout = unix.NsecToTimeval(d.Nanoseconds())
}

// Close is a no-op: the select mechanism holds no kernel object.
func (s *Select) Close() error { return nil }

func (s *Select) resetDrain() {
	s.drain = s.reg.ascending()
	s.drainAt = 0
}

func (s *Select) readyEvents(fd int) uint32 {
	var events uint32
	if s.scratchR.IsSet(fd) {
		events |= SelRead
	}
	if s.scratchW.IsSet(fd) {
		events |= SelWrite
	}
	if s.scratchE.IsSet(fd) {
		events |= SelError
	}
	return events
}

func (s *Select) readyCount() int {
	n := 0
	for _, fd := range s.drain {
		if s.readyEvents(fd) != 0 {
			n++
		}
	}
	return n
}

func maxFd3(a, b, c int) int {
	hi := a
	if b > hi {
		hi = b
	}
	if c > hi {
		hi = c
	}
	return hi
}
