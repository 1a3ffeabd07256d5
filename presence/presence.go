// Package presence records which users are online and when each user was
// last seen leaving. It is bookkeeping next to the registry: the registry
// decides who owns a name, presence only remembers what happened.
package presence

import (
	"context"
	"time"
)

// Store is implemented by presence backends. Implementations must be safe
// for concurrent use.
type Store interface {
	// MarkOnline records that name has joined.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - name: The username that joined
	//
	// Returns:
	//   - An error if the backend could not be updated
	MarkOnline(ctx context.Context, name string) error

	// MarkOffline records that name has left and stamps its last-seen time.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - name: The username that left
	//
	// Returns:
	//   - An error if the backend could not be updated
	MarkOffline(ctx context.Context, name string) error

	// LastSeen returns when name last went offline, if that is still
	// remembered.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - name: The username to look up
	//
	// Returns:
	//   - The last-seen time and true if a record exists
	//   - An error if the backend could not be queried
	LastSeen(ctx context.Context, name string) (time.Time, bool, error)

	// Online returns the usernames currently marked online.
	Online(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
