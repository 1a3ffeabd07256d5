package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/cyberinferno/tcpchat/logger"
)

// Configuration holds the chat client's command-line settings. Empty Host
// and zero Port are asked for on the console.
type Configuration struct {
	Host              string
	Port              int
	Name              string
	LogLevel          string
	ConnectionTimeout time.Duration
}

func defaultConfiguration() Configuration {
	return Configuration{
		LogLevel:          "warn",
		ConnectionTimeout: 10 * time.Second,
	}
}

// Address returns the server "host:port".
func (c Configuration) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func parseFlags(args []string, output io.Writer) (Configuration, error) {
	cfg := defaultConfiguration()

	fs := flag.NewFlagSet("chatclient", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Server address (asked on the console when omitted)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Server port (asked on the console when omitted)")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "Username offered first")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.DurationVar(&cfg.ConnectionTimeout, "connect-timeout", cfg.ConnectionTimeout, "Max duration of the TCP dial")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var errs []error
	if cfg.Port != 0 {
		if err := validatePort(cfg.Port); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if cfg.ConnectionTimeout < 0 {
		errs = append(errs, errors.New("connect-timeout must not be negative"))
	}

	return cfg, errors.Join(errs...)
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}

	return nil
}
