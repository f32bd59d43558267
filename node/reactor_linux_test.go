//go:build linux
// +build linux

package node

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/fzft/go-event-mux/log"
	"github.com/fzft/go-event-mux/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.InitLogger()
	os.Exit(m.Run())
}

func startReactor(t *testing.T, mux poll.Multiplexer) net.Addr {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})

	r, err := NewReactorWith(ctx, doneCh, ln, mux)
	require.NoError(t, err)
	r.SetHandler(EchoHandler{})

	go r.Run()
	t.Cleanup(func() {
		cancel()
		<-doneCh
		ln.Close()
	})

	return ln.Addr()
}

func echoRoundTrip(t *testing.T, addr net.Addr) {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err, "server should echo the payload back")
	assert.Equal(t, "ping\n", string(buf[:n]))
}

func TestReactorEchoSelect(t *testing.T) {
	addr := startReactor(t, poll.NewSelect())
	echoRoundTrip(t, addr)
}

func TestReactorEchoEpoll(t *testing.T) {
	mux, err := poll.NewEpoll()
	require.NoError(t, err)

	addr := startReactor(t, mux)
	echoRoundTrip(t, addr)
}

func TestReactorEchoSequential(t *testing.T) {
	addr := startReactor(t, poll.NewSelect())

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 64)
	for _, msg := range []string{"one\n", "two\n", "three\n"} {
		_, err = conn.Write([]byte(msg))
		require.NoError(t, err)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buf[:n]))
	}
}
