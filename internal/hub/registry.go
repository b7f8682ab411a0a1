package hub

import "sync"

// Registry maps a user identity to the outbound channel of its live session.
//
// Registering an identity that already has an entry replaces it; the previous
// channel is not closed, its session keeps running until its own transport
// fails. Unregister only removes an entry that still points at the caller's
// channel, so a closing session never evicts its replacement.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]chan OutboundFrame
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]chan OutboundFrame)}
}

// Register inserts or overwrites the entry for userID.
func (r *Registry) Register(userID int64, ch chan OutboundFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = ch
}

// Lookup returns the current channel for userID, if any.
func (r *Registry) Lookup(userID int64) (chan<- OutboundFrame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return ch, true
}

// Unregister removes the entry for userID if it is still ch and reports
// whether anything was removed.
func (r *Registry) Unregister(userID int64, ch chan OutboundFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[userID]; ok && current == ch {
		delete(r.entries, userID)
		return true
	}
	return false
}

// Len reports the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
