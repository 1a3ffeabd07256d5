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

// Configuration holds the chat server's command-line settings.
type Configuration struct {
	// Host is the listen address; empty listens on every interface.
	Host string
	// Port is the listen port; 0 means ask on the console.
	Port int
	// LogLevel is a zerolog level name.
	LogLevel string
	// LogFile, when set, receives a copy of every log entry.
	LogFile string
	// RedisAddr selects the Redis presence store; empty keeps it in memory.
	RedisAddr string
	// PresenceTTL is how long a user's last-seen record is kept.
	PresenceTTL time.Duration
	// HandshakeTimeout bounds name negotiation; 0 means unbounded.
	HandshakeTimeout time.Duration
	// MaxNameAttempts bounds NAME_REQUEST rounds; 0 means unbounded.
	MaxNameAttempts int
	// WriteTimeout bounds each send to a client; 0 means no deadline.
	WriteTimeout time.Duration
}

func defaultConfiguration() Configuration {
	return Configuration{
		LogLevel:    "info",
		PresenceTTL: 24 * time.Hour,
	}
}

// Address returns the "host:port" to listen on.
func (c Configuration) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func parseFlags(args []string, output io.Writer) (Configuration, error) {
	cfg := defaultConfiguration()

	fs := flag.NewFlagSet("chatserver", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Listen address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port (asked on the console when omitted)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this file")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the presence store (in-memory when omitted)")
	fs.DurationVar(&cfg.PresenceTTL, "presence-ttl", cfg.PresenceTTL, "How long last-seen records are kept")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Max duration of the username handshake, 0 for none")
	fs.IntVar(&cfg.MaxNameAttempts, "max-name-attempts", cfg.MaxNameAttempts, "Max username attempts per connection, 0 for unlimited")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Max duration of a single send, 0 for none")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return cfg, cfg.validate()
}

func (c Configuration) validate() error {
	var errs []error

	if c.Port != 0 {
		if err := validatePort(c.Port); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.PresenceTTL < 0 {
		errs = append(errs, errors.New("presence-ttl must not be negative"))
	}

	if c.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("handshake-timeout must not be negative"))
	}

	if c.MaxNameAttempts < 0 {
		errs = append(errs, errors.New("max-name-attempts must not be negative"))
	}

	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("write-timeout must not be negative"))
	}

	return errors.Join(errs...)
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}

	return nil
}
