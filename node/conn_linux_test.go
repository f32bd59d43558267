//go:build linux
// +build linux

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedConnQueuesChunks(t *testing.T) {
	c := NewBufferedConn(-1, "")

	require.NoError(t, c.Write([]byte("hello")))
	require.NoError(t, c.Write([]byte("world")))

	assert.Equal(t, 10, c.Len())
	assert.Equal(t, []byte("hello"), c.DataToWrite(), "oldest chunk first")
}

func TestBufferedConnPartialWrite(t *testing.T) {
	c := NewBufferedConn(-1, "")

	require.NoError(t, c.Write([]byte("hello")))
	require.NoError(t, c.Write([]byte("world")))

	c.Next(3)
	assert.Equal(t, 7, c.Len())
	assert.Equal(t, []byte("lo"), c.DataToWrite())

	c.Next(2)
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, []byte("world"), c.DataToWrite(), "drained chunk should be popped")

	c.Next(5)
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.DataToWrite())
}

func TestBufferedConnWriteCopies(t *testing.T) {
	c := NewBufferedConn(-1, "")

	data := []byte("abc")
	require.NoError(t, c.Write(data))
	data[0] = 'x'

	assert.Equal(t, []byte("abc"), c.DataToWrite(), "queued data must not alias the caller's buffer")
}

func TestBufferedConnEmptyWrite(t *testing.T) {
	c := NewBufferedConn(-1, "")

	require.NoError(t, c.Write(nil))
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.DataToWrite())
}
