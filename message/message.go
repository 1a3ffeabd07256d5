// Package message defines the chat protocol's message value and the
// versioned, length-prefixed wire codec shared by server and client.
package message

import "fmt"

// Type identifies the meaning of a Message. The numeric value is the code
// written on the wire.
type Type uint8

const (
	NameRequest  Type = iota + 1 // server asks the client for a username
	UserName                     // client proposes a username
	NameAccepted                 // server accepted the proposed username
	Text                         // chat text, both directions
	UserAdded                    // a user is now online
	UserRemoved                  // a user went offline
)

// String returns the protocol name of the type.
func (t Type) String() string {
	switch t {
	case NameRequest:
		return "NAME_REQUEST"
	case UserName:
		return "USER_NAME"
	case NameAccepted:
		return "NAME_ACCEPTED"
	case Text:
		return "TEXT"
	case UserAdded:
		return "USER_ADDED"
	case UserRemoved:
		return "USER_REMOVED"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known message types.
func (t Type) Valid() bool {
	return t >= NameRequest && t <= UserRemoved
}

// Message is an immutable unit of protocol communication: a type and an
// optional string payload. Messages are comparable with ==; a message
// without data is distinct from one carrying the empty string.
type Message struct {
	typ     Type
	data    string
	hasData bool
}

// New returns a message of type t carrying no data.
//
// Parameters:
//   - t: The message type
//
// Returns:
//   - A data-less Message
func New(t Type) Message {
	return Message{typ: t}
}

// WithData returns a message of type t carrying data.
//
// Parameters:
//   - t: The message type
//   - data: The payload; may be empty
//
// Returns:
//   - A Message whose HasData reports true
func WithData(t Type, data string) Message {
	return Message{typ: t, data: data, hasData: true}
}

// Type returns the message type.
func (m Message) Type() Type {
	return m.typ
}

// Data returns the payload, or "" when the message has none.
func (m Message) Data() string {
	return m.data
}

// HasData reports whether the message carries a payload.
func (m Message) HasData() bool {
	return m.hasData
}

func (m Message) String() string {
	if !m.hasData {
		return m.typ.String()
	}

	return fmt.Sprintf("%s(%q)", m.typ, m.data)
}
