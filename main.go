package main

import (
	"github.com/fzft/go-event-mux/log"
	"github.com/fzft/go-event-mux/node"
)

func main() {
	log.InitLogger()
	s := node.NewServer(":8080")
	s.Run()
}
