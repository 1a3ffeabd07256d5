package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_ReadString(t *testing.T) {
	c := New(strings.NewReader("alice\r\nbob\nlast"), io.Discard)

	for _, want := range []string{"alice", "bob", "last"} {
		got, err := c.ReadString()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := c.ReadString()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConsole_ReadStringEmptyLine(t *testing.T) {
	c := New(strings.NewReader("\n"), io.Discard)

	got, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestConsole_ReadInt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		retries int
	}{
		{name: "valid", input: "9000\n", want: 9000},
		{name: "surrounding spaces", input: "  42 \n", want: 42},
		{name: "retries until valid", input: "abc\n\n7\n", want: 7, retries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := New(strings.NewReader(tt.input), &out)

			got, err := c.ReadInt()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.retries, strings.Count(out.String(), "Please try again."))
		})
	}
}

func TestConsole_ReadIntEOF(t *testing.T) {
	c := New(strings.NewReader("nope\n"), io.Discard)

	_, err := c.ReadInt()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConsole_WriteMessage(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out)

	c.WriteMessage("Server started")
	c.WriteMessage("bob has joined the chat.")

	assert.Equal(t, "Server started\nbob has joined the chat.\n", out.String())
}

func TestConsole_Lines(t *testing.T) {
	c := New(strings.NewReader("hello\nworld\nexit\n"), io.Discard)

	var got []string
	for line := range c.Lines(context.Background()) {
		got = append(got, line)
	}

	assert.Equal(t, []string{"hello", "world", "exit"}, got)
}

func TestConsole_LinesStopsOnCancel(t *testing.T) {
	c := New(strings.NewReader("a\nb\nc\n"), io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	lines := c.Lines(ctx)

	assert.Equal(t, "a", <-lines)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-lines:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
