package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/tcpchat/connection"
	"github.com/cyberinferno/tcpchat/message"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_PromptsForPortAndServes(t *testing.T) {
	port := freePort(t)
	stdin := strings.NewReader("not-a-port\n0\n" + strconv.Itoa(port) + "\n")
	stdout := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan int, 1)
	go func() {
		result <- run(ctx, []string{"-host", "127.0.0.1", "-log-level", "error"}, stdin, stdout, io.Discard)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Server started")
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := connection.Dial(context.Background(), net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, message.New(message.NameRequest), m)

	cancel()
	select {
	case code := <-result:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	out := stdout.String()
	assert.Equal(t, 2, strings.Count(out, "Enter server port:"))
	assert.Contains(t, out, "Please try again.")
	assert.Contains(t, out, "out of range")
}

func TestRun_InvalidFlags(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-port", "99999"}, strings.NewReader(""), io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "out of range")
}

func TestRun_Help(t *testing.T) {
	code := run(context.Background(), []string{"-h"}, strings.NewReader(""), io.Discard, io.Discard)
	assert.Equal(t, 0, code)
}

func TestRun_PortPromptEOF(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(""), io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "read port")
}

func TestRun_UnreachableRedis(t *testing.T) {
	args := []string{"-port", strconv.Itoa(freePort(t)), "-redis-addr", "127.0.0.1:" + strconv.Itoa(freePort(t))}
	code := run(context.Background(), args, strings.NewReader(""), io.Discard, io.Discard)
	assert.Equal(t, 1, code)
}
