package main

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, defaultConfiguration(), cfg)
	assert.Equal(t, 0, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.PresenceTTL)
	assert.Zero(t, cfg.HandshakeTimeout)
	assert.Zero(t, cfg.MaxNameAttempts)
}

func TestParseFlags_AllFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-host", "127.0.0.1",
		"-port", "9000",
		"-log-level", "debug",
		"-log-file", "/tmp/chat.log",
		"-redis-addr", "localhost:6379",
		"-presence-ttl", "1h",
		"-handshake-timeout", "30s",
		"-max-name-attempts", "5",
		"-write-timeout", "10s",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, Configuration{
		Host:             "127.0.0.1",
		Port:             9000,
		LogLevel:         "debug",
		LogFile:          "/tmp/chat.log",
		RedisAddr:        "localhost:6379",
		PresenceTTL:      time.Hour,
		HandshakeTimeout: 30 * time.Second,
		MaxNameAttempts:  5,
		WriteTimeout:     10 * time.Second,
	}, cfg)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}

func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "port too large", args: []string{"-port", "70000"}},
		{name: "negative port", args: []string{"-port", "-1"}},
		{name: "unknown level", args: []string{"-log-level", "loud"}},
		{name: "negative ttl", args: []string{"-presence-ttl", "-1s"}},
		{name: "negative handshake timeout", args: []string{"-handshake-timeout", "-1s"}},
		{name: "negative attempts", args: []string{"-max-name-attempts", "-2"}},
		{name: "negative write timeout", args: []string{"-write-timeout", "-1s"}},
		{name: "unknown flag", args: []string{"-verbose"}},
		{name: "positional argument", args: []string{"9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags([]string{"-h"}, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestConfiguration_AddressAllInterfaces(t *testing.T) {
	cfg := Configuration{Port: 4000}
	assert.Equal(t, ":4000", cfg.Address())
}
