// Command chatserver runs the TCP chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/tcpchat/console"
	"github.com/cyberinferno/tcpchat/logger"
	"github.com/cyberinferno/tcpchat/presence"
	"github.com/cyberinferno/tcpchat/server"
)

const (
	serviceName      = "chatserver"
	redisPrefix      = "tcpchat"
	redisPingTimeout = 5 * time.Second
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
	if cfg.Port == 0 {
		if cfg.Port, err = promptPort(con); err != nil {
			fmt.Fprintf(stderr, "%s: read port: %v\n", serviceName, err)
			return 1
		}
	}

	log, err := newLogger(cfg, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	defer log.Close()

	store, err := newPresence(ctx, cfg)
	if err != nil {
		log.Error("presence store unavailable", logger.Field{Key: "error", Value: err.Error()})
		return 1
	}
	defer store.Close()

	srv := server.New(server.Config{
		Addr:             cfg.Address(),
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxNameAttempts:  cfg.MaxNameAttempts,
		WriteTimeout:     cfg.WriteTimeout,
	}, log, server.WithPresence(store))

	if err := srv.Start(); err != nil {
		con.WriteMessage("Server error: " + err.Error())
		return 1
	}
	con.WriteMessage("Server started")

	<-ctx.Done()
	log.Info("shutdown signal received")
	srv.Stop()

	return 0
}

func promptPort(con *console.Console) (int, error) {
	for {
		con.WriteMessage("Enter server port:")

		port, err := con.ReadInt()
		if err != nil {
			return 0, err
		}

		if err := validatePort(port); err != nil {
			con.WriteMessage(err.Error())
			continue
		}

		return port, nil
	}
}

func newLogger(cfg Configuration, stdout io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.LogFile != "" {
		return logger.NewFileLogger(serviceName, cfg.LogFile, level)
	}

	return logger.NewConsoleLogger(stdout, serviceName, level), nil
}

func newPresence(ctx context.Context, cfg Configuration) (presence.Store, error) {
	if cfg.RedisAddr == "" {
		return presence.NewMemoryStore(cfg.PresenceTTL, time.Minute), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}

	return presence.NewRedisStore(client, redisPrefix, cfg.PresenceTTL), nil
}
