package node

import (
	"github.com/fzft/go-event-mux/log"
	"go.uber.org/zap"
)

// ReaderHandler defines an interface for custom read logic.
type ReaderHandler interface {
	Read(conn Conn) error
}

// EchoHandler is a simple implementation of the ReaderHandler. It can be
// replaced by the user if they implement their own handler.
type EchoHandler struct{}

func (h EchoHandler) Read(conn Conn) error {
	data, err := conn.Read()
	if err != nil {
		return err
	}
	log.Logger.Debug("read data", zap.Int("fd", conn.Fd()), zap.ByteString("data", data))
	if len(data) == 0 {
		return nil
	}
	return conn.Write(data)
}
