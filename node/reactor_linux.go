//go:build linux
// +build linux

package node

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/fzft/go-event-mux/log"
	"github.com/fzft/go-event-mux/poll"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// waitTimeout bounds each blocking readiness query so the loop can observe
// context cancellation between batches.
const waitTimeout = 100 * time.Millisecond

// Reactor drives a poll.Multiplexer: wait for readiness, drain the ready
// batch, dispatch. It owns the accept path and the connection pool; the
// protocol itself lives behind ReaderHandler.
//
// The reactor depends only on the Multiplexer contract, never on a concrete
// backend, so the same loop runs over select or epoll.
type Reactor struct {
	mux poll.Multiplexer

	lnFd   int
	lnFile *os.File // keeps the dup'd listener fd alive

	connPool map[int]BufferedConn
	handler  ReaderHandler

	ctx    context.Context
	doneCh chan struct{}
}

// NewReactor builds a reactor over the reference select backend.
func NewReactor(ctx context.Context, doneCh chan struct{}, ln net.Listener) (*Reactor, error) {
	return NewReactorWith(ctx, doneCh, ln, poll.NewSelect())
}

// NewReactorWith builds a reactor over the given backend.
func NewReactorWith(ctx context.Context, doneCh chan struct{}, ln net.Listener, mux poll.Multiplexer) (*Reactor, error) {
	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		log.Logger.Error("Failed to get listener fd", zap.Error(err))
		return nil, err
	}

	lnFd := int(f.Fd())
	if err := unix.SetNonblock(lnFd, true); err != nil {
		log.Logger.Error("set nonblock error", zap.Error(err))
		return nil, err
	}

	mux.SetTimeout(waitTimeout)
	if err := mux.Add(lnFd, mux.ReadEvent()); err != nil {
		log.Logger.Error("Failed to add listener", zap.String("backend", mux.Name()), zap.Error(err))
		return nil, err
	}

	return &Reactor{
		mux:      mux,
		lnFd:     lnFd,
		lnFile:   f,
		connPool: make(map[int]BufferedConn),
		ctx:      ctx,
		doneCh:   doneCh,
	}, nil
}

func (r *Reactor) SetHandler(handler ReaderHandler) {
	r.handler = handler
}

// Run blocks, looping wait -> drain -> dispatch until the context is
// cancelled or the backend reports a fatal failure.
func (r *Reactor) Run() {
	defer close(r.doneCh)
	defer r.closeAll()

	batch := make([]poll.Event, 0, 64)

	for {
		select {
		case <-r.ctx.Done():
			log.Logger.Info("Received stop signal. Exiting event loop.")
			return
		default:
		}

		n, err := r.mux.Wait()
		if err != nil {
			// not retried: a failed wait is a contract violation
			log.Logger.Error("wait error", zap.String("backend", r.mux.Name()), zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}

		// drain completely before dispatching: handlers add and remove
		// registrations, which would invalidate an in-progress drain
		batch = batch[:0]
		for {
			ev, ok, err := r.mux.GetEvent()
			if err != nil {
				log.Logger.Error("drain error", zap.Error(err))
				return
			}
			if !ok {
				break
			}
			batch = append(batch, ev)
		}

		for _, ev := range batch {
			if err := r.dispatch(ev); err != nil {
				log.Logger.Error("Failed to process event", zap.Error(err))
				return
			}
		}
	}
}

func (r *Reactor) dispatch(ev poll.Event) error {
	if r.mux.HasErrorEvents() && ev.Events&r.mux.ErrorEvent() != 0 {
		log.Logger.Debug("error event", zap.Int("fd", ev.Fd))
		r.drop(ev.Fd)
		return nil
	}

	if ev.Fd == r.lnFd {
		return r.accept(ev.Fd)
	}

	conn, ok := r.connPool[ev.Fd]
	if !ok {
		// raced with a drop earlier in the same batch
		log.Logger.Debug("connection not found", zap.Int("fd", ev.Fd))
		return nil
	}

	if ev.Events&r.mux.ReadEvent() != 0 {
		if err := r.handler.Read(conn); err != nil {
			if err != io.EOF {
				log.Logger.Debug("read handler error", zap.Int("fd", ev.Fd), zap.Error(err))
			}
			r.drop(ev.Fd)
			return nil
		}
		if conn.Len() > 0 {
			return r.watchWrite(ev.Fd)
		}
		return nil
	}

	if ev.Events&r.mux.WriteEvent() != 0 {
		return r.flush(conn)
	}

	return nil
}

// accept a new connection
func (r *Reactor) accept(fd int) error {
	connFd, sa, err := unix.Accept(fd)
	if err != nil {
		// no more connections to accept right now
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		log.Logger.Error("accept error", zap.Error(err))
		return fmt.Errorf("accept error: %w", err)
	}

	if err := unix.SetNonblock(connFd, true); err != nil {
		log.Logger.Error("set nonblock error", zap.Error(err))
		return fmt.Errorf("set nonblock error for fd %d: %w", connFd, err)
	}

	if err := r.mux.Add(connFd, r.readInterest()); err != nil {
		log.Logger.Error("register read error", zap.Error(err))
		return fmt.Errorf("register read error for fd %d: %w", connFd, err)
	}

	var ip string
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip = net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3]).String()
	case *unix.SockaddrInet6:
		ip = net.IP(addr.Addr[:]).String()
	default:
	}

	r.connPool[connFd] = NewBufferedConn(connFd, ip)

	log.Logger.Debug("new connection", zap.Int("fd", connFd), zap.String("ip", ip))
	return nil
}

// flush writes queued output until the socket would block, then stops
// watching for writability once everything is out.
func (r *Reactor) flush(conn BufferedConn) error {
	fd := conn.Fd()

	for conn.Len() > 0 {
		n, err := unix.Write(fd, conn.DataToWrite())
		if n > 0 {
			conn.Next(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			log.Logger.Debug("write error", zap.Int("fd", fd), zap.Error(err))
			r.drop(fd)
			return nil
		}
	}

	return r.watchRead(fd)
}

// drop removes the fd from the multiplexer before closing it; the
// multiplexer never observes closure on its own.
func (r *Reactor) drop(fd int) {
	if err := r.mux.Remove(fd); err != nil {
		log.Logger.Debug("Failed to remove fd", zap.Int("fd", fd), zap.Error(err))
	}
	if conn, ok := r.connPool[fd]; ok {
		if err := conn.Close(); err != nil {
			log.Logger.Debug("Failed to close connection", zap.Int("fd", fd), zap.Error(err))
		}
		delete(r.connPool, fd)
	}
}

func (r *Reactor) readInterest() uint32 {
	events := r.mux.ReadEvent()
	if r.mux.HasErrorEvents() {
		events |= r.mux.ErrorEvent()
	}
	return events
}

func (r *Reactor) watchRead(fd int) error {
	return r.mux.Modify(fd, r.readInterest())
}

func (r *Reactor) watchWrite(fd int) error {
	return r.mux.Modify(fd, r.readInterest()|r.mux.WriteEvent())
}

// closeAll order: connections, listener, multiplexer.
func (r *Reactor) closeAll() {
	var errs MultiError

	for fd, conn := range r.connPool {
		if err := r.mux.Remove(fd); err != nil {
			errs = append(errs, fmt.Errorf("remove fd: %d error: %v", fd, err))
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fd: %d error: %v", fd, err))
		}
		delete(r.connPool, fd)
	}

	if err := r.mux.Remove(r.lnFd); err != nil {
		errs = append(errs, fmt.Errorf("remove listener error: %v", err))
	}
	if err := r.lnFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close listener error: %v", err))
	}

	if err := r.mux.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s error: %v", r.mux.Name(), err))
	}

	if len(errs) > 0 {
		log.Logger.Debug("Failed to close reactor", zap.Error(errs))
	}
}
