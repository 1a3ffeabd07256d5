// Package registry keeps the set of online users: a concurrent mapping from
// username to the connection that owns it. It is the single source of truth
// for who is online and the only state shared between server sessions.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cyberinferno/tcpchat/logger"
	"github.com/cyberinferno/tcpchat/message"
)

// Sender is the part of a connection the registry needs. Values must be
// comparable (typically pointers) so Release can match the owner.
type Sender interface {
	Send(m message.Message) error
}

// Entry is one (username, connection) pair of a Snapshot.
type Entry struct {
	Name string
	Conn Sender
}

// Registry maps usernames to connections. It is safe for concurrent use and
// must not be copied after first use. The registry never closes the
// connections it holds.
type Registry struct {
	users  sync.Map
	logger logger.Logger
}

// New returns an empty Registry. A nil log discards broadcast diagnostics.
//
// Parameters:
//   - log: Logger for per-recipient delivery failures
//
// Returns:
//   - A new, empty *Registry
func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Registry{logger: log}
}

// TryRegister binds name to conn if name is non-empty and not already
// taken. The check and the insert are a single atomic step.
//
// Parameters:
//   - name: The proposed username
//   - conn: The connection that will own the name
//
// Returns:
//   - true if the name was registered, false (and no change) otherwise
func (r *Registry) TryRegister(name string, conn Sender) bool {
	if name == "" || conn == nil {
		return false
	}

	_, loaded := r.users.LoadOrStore(name, conn)
	return !loaded
}

// Remove drops name unconditionally. It is a no-op for unknown names.
func (r *Registry) Remove(name string) {
	r.users.Delete(name)
}

// Release drops name only while it is still bound to conn.
//
// Parameters:
//   - name: The username to release
//   - conn: The connection expected to own it
//
// Returns:
//   - true if the entry was removed
func (r *Registry) Release(name string, conn Sender) bool {
	return r.users.CompareAndDelete(name, conn)
}

// Get returns the connection registered under name.
func (r *Registry) Get(name string) (Sender, bool) {
	v, ok := r.users.Load(name)
	if !ok {
		return nil, false
	}

	return v.(Sender), true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.users.Load(name)
	return ok
}

// Len returns the number of registered users. It iterates over all entries.
func (r *Registry) Len() int {
	n := 0
	r.users.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Snapshot returns a point-in-time copy of the registry sorted by name.
// It may lag registrations that happen concurrently.
func (r *Registry) Snapshot() []Entry {
	var entries []Entry
	r.users.Range(func(k, v any) bool {
		entries = append(entries, Entry{Name: k.(string), Conn: v.(Sender)})
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}

// Names returns the registered usernames, sorted.
func (r *Registry) Names() []string {
	entries := r.Snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}

	return names
}

// Broadcast sends m to every connection in the current snapshot, one after
// another. A failed delivery is logged and does not stop delivery to the
// remaining connections.
//
// Parameters:
//   - m: The message to deliver
//
// Returns:
//   - nil if every delivery succeeded, otherwise the joined per-recipient errors
func (r *Registry) Broadcast(m message.Message) error {
	var errs []error
	for _, e := range r.Snapshot() {
		if err := e.Conn.Send(m); err != nil {
			r.logger.Warn("broadcast delivery failed",
				logger.Field{Key: "user", Value: e.Name},
				logger.Field{Key: "type", Value: m.Type().String()},
				logger.Field{Key: "error", Value: err.Error()},
			)
			errs = append(errs, fmt.Errorf("deliver to %s: %w", e.Name, err))
		}
	}

	return errors.Join(errs...)
}
