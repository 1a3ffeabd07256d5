package client

import (
	"sort"
	"sync"
)

// Roster is the client's local view of who is online, fed by USER_ADDED
// and USER_REMOVED events. It is safe for concurrent use.
type Roster struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{names: make(map[string]struct{})}
}

// Add records name as online.
func (r *Roster) Add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = struct{}{}
}

// Remove records name as offline.
func (r *Roster) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// Contains reports whether name is online.
func (r *Roster) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Size returns the number of online users.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the online users, sorted.
func (r *Roster) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Reset forgets everyone.
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[string]struct{})
}
