package node

// Conn is the interface for a connection owned by the reactor.
type Conn interface {
	// Read drains whatever the socket currently holds.
	Read() (data []byte, err error)

	// Write queues data for delivery; the reactor flushes it when the
	// socket reports writability.
	Write(data []byte) (err error)

	// Close closes the connection.
	Close() error

	Fd() int
	Ip() string
}

type Buffer interface {
	// DataToWrite returns the oldest unsent chunk.
	DataToWrite() []byte

	// Next marks n bytes of queued output as written.
	Next(n int)

	// Len is the number of queued output bytes left.
	Len() int
}

// BufferedConn is the interface for a buffered connection.
type BufferedConn interface {
	Conn
	Buffer
}
