//go:build linux
// +build linux

package node

import (
	"bytes"
	"io"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

type DefaultBufferedConn struct {
	fd int
	ip string

	// outbound chunks, oldest first; headOff is how much of the head
	// chunk has already been written
	out     *queue.Queue
	headOff int
	pending int
}

func NewBufferedConn(fd int, ip string) *DefaultBufferedConn {
	return &DefaultBufferedConn{
		fd:  fd,
		ip:  ip,
		out: queue.New(),
	}
}

// Read drains the non-blocking socket until EAGAIN. A clean end of stream
// is reported as io.EOF.
func (c *DefaultBufferedConn) Read() ([]byte, error) {
	var buf bytes.Buffer
	readBuffer := make([]byte, 4096)

	for {
		n, err := unix.Read(c.fd, readBuffer)
		if n > 0 {
			buf.Write(readBuffer[:n])
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return nil, err
		}
		if n == 0 {
			// peer closed its end
			if buf.Len() == 0 {
				return nil, io.EOF
			}
			break
		}
	}

	return buf.Bytes(), nil
}

// Write queues a copy of data for the reactor to flush once the socket is
// writable.
func (c *DefaultBufferedConn) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	c.out.Add(chunk)
	c.pending += len(chunk)
	return nil
}

func (c *DefaultBufferedConn) DataToWrite() []byte {
	if c.out.Length() == 0 {
		return nil
	}
	head := c.out.Peek().([]byte)
	return head[c.headOff:]
}

func (c *DefaultBufferedConn) Next(n int) {
	c.pending -= n
	c.headOff += n
	for c.out.Length() > 0 {
		head := c.out.Peek().([]byte)
		if c.headOff < len(head) {
			break
		}
		c.headOff -= len(head)
		c.out.Remove()
	}
}

func (c *DefaultBufferedConn) Len() int {
	return c.pending
}

func (c *DefaultBufferedConn) Fd() int {
	return c.fd
}

func (c *DefaultBufferedConn) Ip() string {
	return c.ip
}

func (c *DefaultBufferedConn) Close() error {
	return CloseFd(c.fd)
}
