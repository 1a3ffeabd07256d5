package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/tcpchat/message"
)

func pipe(t *testing.T) (*Connection, *Connection) {
	t.Helper()

	a, b := net.Pipe()
	ca, cb := New(a), New(b)
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})

	return ca, cb
}

func TestConnection_SendReceive(t *testing.T) {
	client, server := pipe(t)

	go func() {
		_ = client.Send(message.WithData(message.UserName, "alice"))
	}()

	got, err := server.Receive()
	require.NoError(t, err)
	assert.Equal(t, message.WithData(message.UserName, "alice"), got)
}

func TestConnection_ConcurrentSendsDoNotInterleave(t *testing.T) {
	client, server := pipe(t)

	const senders = 20
	const perSender = 50

	var wg sync.WaitGroup
	wg.Add(senders)
	for s := range senders {
		go func(id int) {
			defer wg.Done()
			for i := range perSender {
				assert.NoError(t, client.Send(message.WithData(message.Text, fmt.Sprintf("%d-%d", id, i))))
			}
		}(s)
	}

	seen := make(map[string]bool)
	for range senders * perSender {
		m, err := server.Receive()
		require.NoError(t, err)
		require.Equal(t, message.Text, m.Type())
		seen[m.Data()] = true
	}
	wg.Wait()

	assert.Len(t, seen, senders*perSender)
}

func TestConnection_PerSenderOrderIsPreserved(t *testing.T) {
	client, server := pipe(t)

	go func() {
		for i := range 100 {
			_ = client.Send(message.WithData(message.Text, fmt.Sprint(i)))
		}
	}()

	for i := range 100 {
		m, err := server.Receive()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), m.Data())
	}
}

func TestConnection_FullDuplex(t *testing.T) {
	a, b := pipe(t)

	// Both sides send and receive at the same time; a shared lock would
	// deadlock on a synchronous pipe.
	var wg sync.WaitGroup
	wg.Add(4)
	for _, c := range []*Connection{a, b} {
		go func(c *Connection) {
			defer wg.Done()
			for range 10 {
				assert.NoError(t, c.Send(message.New(message.NameRequest)))
			}
		}(c)
		go func(c *Connection) {
			defer wg.Done()
			for range 10 {
				m, err := c.Receive()
				assert.NoError(t, err)
				assert.Equal(t, message.NameRequest, m.Type())
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("full-duplex exchange did not complete")
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	a, _ := pipe(t)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.True(t, a.Closed())

	err := a.Send(message.New(message.NameAccepted))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "send", te.Op)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = a.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnection_CloseUnblocksReceive(t *testing.T) {
	a, _ := pipe(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Receive()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestConnection_PeerCloseIsEOF(t *testing.T) {
	a, b := pipe(t)
	require.NoError(t, b.Close())

	_, err := a.Receive()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConnection_DecodeError(t *testing.T) {
	raw, peer := net.Pipe()
	c := New(peer)
	t.Cleanup(func() {
		_ = raw.Close()
		_ = c.Close()
	})

	go func() {
		_, _ = raw.Write([]byte{3, 0, 0, 0, 9, 9, 9})
	}()

	_, err := c.Receive()
	assert.ErrorIs(t, err, message.ErrDecode)

	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

func TestConnection_EncodeErrorIsNotTransport(t *testing.T) {
	a, _ := pipe(t)

	err := a.Send(message.New(message.Type(0)))
	assert.ErrorIs(t, err, message.ErrInvalidType)
}

func TestConnection_WriteTimeout(t *testing.T) {
	a, b := net.Pipe()
	c := New(a, WithWriteTimeout(30*time.Millisecond))
	t.Cleanup(func() {
		_ = c.Close()
		_ = b.Close()
	})

	// Nobody reads b, so the synchronous pipe write must hit the deadline.
	err := c.Send(message.WithData(message.Text, "stalled"))
	var te *TransportError
	require.ErrorAs(t, err, &te)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		peer := New(conn)
		defer peer.Close()
		_ = peer.Send(message.New(message.NameRequest))
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()

	m, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, message.New(message.NameRequest), m)
	assert.NotNil(t, c.RemoteAddr())
}

func TestDial_Failure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, time.Second)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dial", te.Op)
}
