package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// Version is the wire format version written in every frame.
	Version byte = 1

	// HeaderSize is the size of the little-endian length prefix.
	HeaderSize = 4

	// MaxBodySize bounds a single frame body.
	MaxBodySize = 16 * 1024 * 1024

	bodyPrefixSize = 3
	flagHasData    = 0x01
)

var (
	// ErrDecode is matched by every error caused by bytes that do not form a
	// valid message.
	ErrDecode = errors.New("message: malformed frame")

	// ErrInvalidType is returned when encoding a message of an unknown type.
	ErrInvalidType = errors.New("message: invalid type")

	// ErrTooLarge is returned when encoding a message whose body would exceed
	// MaxBodySize.
	ErrTooLarge = errors.New("message: body too large")
)

// Encode serializes m into a complete frame: length prefix followed by body.
//
// Parameters:
//   - m: The message to encode
//
// Returns:
//   - The frame bytes
//   - ErrInvalidType or ErrTooLarge if m cannot be framed
func Encode(m Message) ([]byte, error) {
	if !m.typ.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, uint8(m.typ))
	}

	bodyLen := bodyPrefixSize + len(m.data)
	if bodyLen > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, bodyLen)
	}

	frame := make([]byte, HeaderSize+bodyLen)
	binary.LittleEndian.PutUint32(frame, uint32(bodyLen))

	body := frame[HeaderSize:]
	body[0] = Version
	body[1] = byte(m.typ)
	if m.hasData {
		body[2] = flagHasData
		copy(body[bodyPrefixSize:], m.data)
	}

	return frame, nil
}

// Decode parses a frame body (without its length prefix) into a Message.
//
// Parameters:
//   - body: The frame body
//
// Returns:
//   - The decoded Message
//   - An error matching ErrDecode if body is not a valid message
func Decode(body []byte) (Message, error) {
	if len(body) < bodyPrefixSize {
		return Message{}, fmt.Errorf("%w: body of %d bytes is too short", ErrDecode, len(body))
	}

	if body[0] != Version {
		return Message{}, fmt.Errorf("%w: unsupported version %d", ErrDecode, body[0])
	}

	t := Type(body[1])
	if !t.Valid() {
		return Message{}, fmt.Errorf("%w: unknown type %d", ErrDecode, body[1])
	}

	flags := body[2]
	if flags&^flagHasData != 0 {
		return Message{}, fmt.Errorf("%w: unknown flags %#x", ErrDecode, flags)
	}

	payload := body[bodyPrefixSize:]
	if flags&flagHasData == 0 {
		if len(payload) != 0 {
			return Message{}, fmt.Errorf("%w: %d trailing bytes on %s", ErrDecode, len(payload), t)
		}

		return New(t), nil
	}

	if !utf8.Valid(payload) {
		return Message{}, fmt.Errorf("%w: data is not valid UTF-8", ErrDecode)
	}

	return WithData(t, string(payload)), nil
}

// ReadFrame reads one length-prefixed frame body from r. I/O failures are
// returned unwrapped (io.EOF on a clean end of stream, io.ErrUnexpectedEOF
// inside a frame); an invalid length prefix matches ErrDecode.
//
// Parameters:
//   - r: The stream to read from
//
// Returns:
//   - The frame body
//   - An I/O error or a decode error
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(header[:])
	if n == 0 || n > MaxBodySize {
		return nil, fmt.Errorf("%w: invalid body length %d", ErrDecode, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	return body, nil
}
