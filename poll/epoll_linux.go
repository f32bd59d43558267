//go:build linux
// +build linux

package poll

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Interest bits of the epoll backend: the kernel's own event values.
const (
	EpRead  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	EpWrite uint32 = unix.EPOLLOUT
	EpError uint32 = unix.EPOLLERR | unix.EPOLLHUP
)

// epollBatch is the wait buffer size, not a connection limit: a bigger
// ready set is simply delivered across several Wait calls.
const epollBatch = 128

// Epoll is a readiness-list backend over epoll(7), conforming to the same
// Multiplexer contract as Select. Registrations live in the kernel interest
// list; the user-space table only remembers the stored mask per fd so that
// Add can distinguish EPOLL_CTL_ADD from EPOLL_CTL_MOD and Remove can
// enforce its precondition.
//
// Level-triggered, matching the reference backend's semantics.
type Epoll struct {
	epfd  int
	table map[int]uint32

	events []unix.EpollEvent
	ready  []Event

	drainAt int
	batch   bool
	msec    int
}

var _ Multiplexer = (*Epoll)(nil)

func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Epoll{
		epfd:   epfd,
		table:  make(map[int]uint32),
		events: make([]unix.EpollEvent, epollBatch),
	}, nil
}

func (e *Epoll) ReadEvent() uint32 { return EpRead }

func (e *Epoll) WriteEvent() uint32 { return EpWrite }

func (e *Epoll) ErrorEvent() uint32 { return EpError }

func (e *Epoll) InvalidFd() int { return invalidFd }

func (e *Epoll) HasErrorEvents() bool { return true }

func (e *Epoll) Name() string { return "epoll" }

func (e *Epoll) Add(fd int, events uint32) error {
	if fd < 0 {
		return fmt.Errorf("%w: %d", ErrBadFd, fd)
	}
	if events == 0 {
		return ErrEmptyMask
	}

	op := unix.EPOLL_CTL_ADD
	if old, ok := e.table[fd]; ok {
		// re-adding widens interest, it never narrows; an inert entry
		// (mask cleared by Modify) has no kernel object and needs ADD
		events |= old
		if old != 0 {
			op = unix.EPOLL_CTL_MOD
		}
	}
	err := unix.EpollCtl(e.epfd, op, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	if err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	e.table[fd] = events
	return nil
}

func (e *Epoll) Modify(fd int, events uint32) error {
	if fd < 0 {
		return fmt.Errorf("%w: %d", ErrBadFd, fd)
	}

	old, ok := e.table[fd]
	switch {
	case events == 0:
		// clear all interest but stay registered; the kernel entry goes
		// away, the table entry waits for Remove
		if ok && old != 0 {
			if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
				return os.NewSyscallError("epoll_ctl del", err)
			}
			e.table[fd] = 0
		}
		return nil
	case !ok || old == 0:
		err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
		if err != nil {
			return os.NewSyscallError("epoll_ctl add", err)
		}
	default:
		err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
		if err != nil {
			return os.NewSyscallError("epoll_ctl mod", err)
		}
	}
	e.table[fd] = events
	return nil
}

func (e *Epoll) Remove(fd int) error {
	mask, ok := e.table[fd]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, fd)
	}
	if mask != 0 {
		if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return os.NewSyscallError("epoll_ctl del", err)
		}
	}
	delete(e.table, fd)

	// restart the drain over the surviving events; the removed fd must
	// not be re-delivered
	if len(e.ready) > 0 {
		kept := e.ready[:0]
		for _, ev := range e.ready {
			if ev.Fd != fd {
				kept = append(kept, ev)
			}
		}
		e.ready = kept
	}
	e.drainAt = 0
	return nil
}

func (e *Epoll) Wait() (int, error) {
	n, err := unix.EpollWait(e.epfd, e.events, e.msec)
	if err != nil {
		if err == unix.EINTR {
			// benign interruption normalizes to zero ready, which also
			// means there is no batch left to drain
			e.batch = false
			return 0, nil
		}
		e.batch = false
		return -1, fmt.Errorf("%w: %v", ErrBackend, os.NewSyscallError("epoll_wait", err))
	}

	e.ready = e.ready[:0]
	for i := 0; i < n; i++ {
		ev := &e.events[i]
		e.ready = append(e.ready, Event{Fd: int(ev.Fd), Events: ev.Events})
	}
	e.drainAt = 0
	e.batch = n > 0
	return n, nil
}

func (e *Epoll) GetEvent() (Event, bool, error) {
	if len(e.table) == 0 || !e.batch {
		return Event{}, false, ErrNoBatch
	}
	if e.drainAt < len(e.ready) {
		ev := e.ready[e.drainAt]
		e.drainAt++
		return ev, true, nil
	}
	return Event{}, false, nil
}

func (e *Epoll) SetTimeout(d time.Duration) {
	e.msec = int(d / time.Millisecond)
}

func (e *Epoll) Close() error {
	return unix.Close(e.epfd)
}
