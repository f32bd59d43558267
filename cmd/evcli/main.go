package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

const historyFileDefault = ".evcli_history"

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	reply := bufio.NewReader(conn)

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		if err := pipeMode(conn, reply); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	prompt := *addr + "> "
	for {
		in, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			fmt.Fprintln(os.Stderr, err)
			break
		}
		if in == "quit" || in == "exit" {
			break
		}
		if in == "" {
			continue
		}
		line.AppendHistory(in)

		if err := roundTrip(conn, reply, in); err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

func roundTrip(conn net.Conn, reply *bufio.Reader, in string) error {
	if _, err := fmt.Fprintf(conn, "%s\n", in); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	out, err := reply.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Print(out)
	return nil
}

func pipeMode(conn net.Conn, reply *bufio.Reader) error {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		if err := roundTrip(conn, reply, in.Text()); err != nil {
			return err
		}
	}
	return in.Err()
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFileDefault
	}
	return filepath.Join(home, historyFileDefault)
}
