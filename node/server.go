package node

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fzft/go-event-mux/log"
	"go.uber.org/zap"
)

type Server struct {
	addr    string
	handler ReaderHandler
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
	}
}

func (s *Server) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		log.Logger.Error("listen error: ", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneCh := make(chan struct{})

	reactor, err := NewReactor(ctx, doneCh, ln)
	if err != nil {
		return err
	}

	if s.handler == nil {
		s.handler = EchoHandler{}
	}
	reactor.SetHandler(s.handler)

	log.Logger.Info("listening on ", zap.String("addr", s.addr))
	go reactor.Run()

	select {
	case <-doneCh:
	case <-sigCh:
		log.Logger.Info("signal received")
		cancel()
		<-doneCh
	}

	log.Logger.Info("shutting down server")
	return nil
}

func (s *Server) SetHandler(handler ReaderHandler) {
	s.handler = handler
}
