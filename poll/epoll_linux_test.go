//go:build linux
// +build linux

package poll

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestEpoll(t *testing.T) *Epoll {
	t.Helper()
	e, err := NewEpoll()
	require.NoError(t, err, "epoll instance should be created")
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEpollBackendContract(t *testing.T) {
	e := newTestEpoll(t)

	assert.Equal(t, "epoll", e.Name())
	assert.Equal(t, -1, e.InvalidFd())
	assert.True(t, e.HasErrorEvents())

	assert.NotZero(t, e.ReadEvent())
	assert.NotZero(t, e.WriteEvent())
	assert.NotZero(t, e.ErrorEvent())
	assert.Zero(t, e.ReadEvent()&e.WriteEvent())
	assert.Zero(t, e.ReadEvent()&e.ErrorEvent())
	assert.Zero(t, e.WriteEvent()&e.ErrorEvent())
}

func TestEpollAddRejectsEmptyMask(t *testing.T) {
	e := newTestEpoll(t)

	assert.ErrorIs(t, e.Add(3, 0), ErrEmptyMask)
	assert.ErrorIs(t, e.Add(e.InvalidFd(), EpRead), ErrBadFd)
	assert.Empty(t, e.table)
}

func TestEpollRemoveUnregistered(t *testing.T) {
	e := newTestEpoll(t)

	assert.ErrorIs(t, e.Remove(9), ErrNotRegistered)
}

func TestEpollWaitDefaultNonBlocking(t *testing.T) {
	e := newTestEpoll(t)
	pr, _ := makePipe(t)
	require.NoError(t, e.Add(pr, EpRead))

	start := time.Now()
	n, err := e.Wait()

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"the default timeout is a non-blocking poll")
}

func TestEpollWaitDrain(t *testing.T) {
	e := newTestEpoll(t)

	pr, pw := makePipe(t)
	require.NoError(t, e.Add(pr, EpRead))

	_, err := unix.Write(pw, []byte("x"))
	require.NoError(t, err)

	e.SetTimeout(time.Second)
	n, err := e.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ev, ok, err := e.GetEvent()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pr, ev.Fd)
	assert.NotZero(t, ev.Events&EpRead)

	_, ok, err = e.GetEvent()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEpollModifyZeroLeavesInertRegistration(t *testing.T) {
	e := newTestEpoll(t)

	pr, pw := makePipe(t)
	require.NoError(t, e.Add(pr, EpRead))
	require.NoError(t, e.Modify(pr, 0))

	_, err := unix.Write(pw, []byte("x"))
	require.NoError(t, err)

	n, err := e.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "cleared interest should report nothing")

	// still registered: Remove succeeds, and re-arming works
	require.NoError(t, e.Modify(pr, EpRead))
	e.SetTimeout(time.Second)
	n, err = e.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, e.Remove(pr))
}

func TestEpollRemoveMidDrain(t *testing.T) {
	e := newTestEpoll(t)

	aRead, aWrite := makePipe(t)
	bRead, bWrite := makePipe(t)
	require.NoError(t, e.Add(aRead, EpRead))
	require.NoError(t, e.Add(bRead, EpRead))

	_, err := unix.Write(aWrite, []byte("x"))
	require.NoError(t, err)
	_, err = unix.Write(bWrite, []byte("y"))
	require.NoError(t, err)

	e.SetTimeout(time.Second)
	n, err := e.Wait()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok, err := e.GetEvent()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, e.Remove(aRead))

	// the drain restarts over the surviving events and must not
	// re-deliver the removed fd
	var fds []int
	for {
		ev, ok, err := e.GetEvent()
		require.NoError(t, err)
		if !ok {
			break
		}
		fds = append(fds, ev.Fd)
	}
	assert.Equal(t, []int{bRead}, fds)
}

func TestEpollWaitInterruptedClearsBatch(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e := newTestEpoll(t)

	pr, pw := makePipe(t)
	require.NoError(t, e.Add(pr, EpRead))

	_, err := unix.Write(pw, []byte("x"))
	require.NoError(t, err)

	e.SetTimeout(time.Second)
	n, err := e.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// leave the batch undrained, consume the byte so nothing is ready
	buf := make([]byte, 8)
	_, err = unix.Read(pr, buf)
	require.NoError(t, err)

	interruptSoon(t)
	e.SetTimeout(5 * time.Second)
	start := time.Now()
	n, err = e.Wait()

	require.NoError(t, err, "an interrupted wait is benign, not a failure")
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 5*time.Second, "the wait should have been cut short")

	_, _, err = e.GetEvent()
	assert.ErrorIs(t, err, ErrNoBatch,
		"an interrupted wait must not leave the stale batch drainable")
}

func TestEpollGetEventPrecondition(t *testing.T) {
	e := newTestEpoll(t)

	_, _, err := e.GetEvent()
	assert.ErrorIs(t, err, ErrNoBatch)

	pr, _ := makePipe(t)
	require.NoError(t, e.Add(pr, EpRead))

	_, _, err = e.GetEvent()
	assert.ErrorIs(t, err, ErrNoBatch)
}
