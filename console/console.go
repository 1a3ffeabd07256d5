// Package console provides line-oriented terminal I/O for the chat binaries.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Console reads lines from one stream and writes messages to another.
// Writes are safe for concurrent use. Reads must come from one goroutine;
// after Lines is called, read only from the returned channel.
type Console struct {
	reader *bufio.Reader

	mu  sync.Mutex
	out io.Writer
}

// New returns a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// WriteMessage prints msg followed by a newline.
func (c *Console) WriteMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, msg)
}

// ReadString reads one line without its line terminator. A final line
// without a newline is returned as is; io.EOF is returned only when
// nothing is left to read.
func (c *Console) ReadString() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}

		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// ReadInt reads lines until one parses as an integer, printing a retry
// notice after every invalid one.
func (c *Console) ReadInt() (int, error) {
	for {
		line, err := c.ReadString()
		if err != nil {
			return 0, err
		}

		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil {
			return n, nil
		}

		c.WriteMessage("An error occurred while trying to enter a number. Please try again.")
	}
}

// Lines streams the remaining input one line at a time. The channel is
// closed at end of input, on a read error, or when ctx is cancelled.
func (c *Console) Lines(ctx context.Context) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		for {
			line, err := c.ReadString()
			if err != nil {
				return
			}

			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}
