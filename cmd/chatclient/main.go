// Command chatclient connects to a chat server and relays console input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cyberinferno/tcpchat/client"
	"github.com/cyberinferno/tcpchat/console"
	"github.com/cyberinferno/tcpchat/logger"
)

const (
	serviceName  = "chatclient"
	writeTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}

	con := console.New(stdin, stdout)
	if err := promptAddress(con, &cfg); err != nil {
		fmt.Fprintf(stderr, "%s: read server address: %v\n", serviceName, err)
		return 1
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.NewConsoleLogger(stderr, serviceName, level)
	defer log.Close()

	lines := con.Lines(ctx)

	c := client.New(client.Config{
		Address:           cfg.Address(),
		ConnectionTimeout: cfg.ConnectionTimeout,
		WriteTimeout:      writeTimeout,
	}, nameAsker(con, cfg.Name, lines), consoleView{con: con}, log)

	var established atomic.Bool
	c.OnConnectionState(func(event client.ConnectionStateEvent) {
		switch event.State {
		case client.Connected:
			established.Store(true)
			con.WriteMessage("Connection established. Type 'exit' to quit.")
		case client.Lost:
			con.WriteMessage("Connection lost.")
		}
	})

	if err := c.Run(ctx, lines); err != nil {
		log.Debug("client stopped", logger.Field{Key: "error", Value: err.Error()})
		if !established.Load() {
			return 1
		}
	}

	return 0
}

func promptAddress(con *console.Console, cfg *Configuration) error {
	for cfg.Host == "" {
		con.WriteMessage("Enter server address: ")

		host, err := con.ReadString()
		if err != nil {
			return err
		}

		cfg.Host = strings.TrimSpace(host)
	}

	for cfg.Port == 0 {
		con.WriteMessage("Enter server port: ")

		port, err := con.ReadInt()
		if err != nil {
			return err
		}

		if err := validatePort(port); err != nil {
			con.WriteMessage(err.Error())
			continue
		}

		cfg.Port = port
	}

	return nil
}

// nameAsker offers first, when set, for the first NAME_REQUEST and asks on
// the console for every other one. It is only called from the client's
// receive goroutine.
func nameAsker(con *console.Console, first string, lines <-chan string) client.NameFunc {
	offered := first

	return func(ctx context.Context) (string, error) {
		if offered != "" {
			name := offered
			offered = ""
			return name, nil
		}

		con.WriteMessage("Enter your username: ")

		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}

			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

type consoleView struct {
	con *console.Console
}

func (v consoleView) ShowText(text string) {
	v.con.WriteMessage(text)
}

func (v consoleView) ShowUserAdded(name string) {
	v.con.WriteMessage(name + " has joined the chat.")
}

func (v consoleView) ShowUserRemoved(name string) {
	v.con.WriteMessage(name + " has left the chat.")
}
