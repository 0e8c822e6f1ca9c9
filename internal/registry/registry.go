package registry

import (
	"fmt"
	"sync"

	"peerlink/internal/domain"
)

// Registry is the concurrency-safe map from peer identity to its
// current session.
type Registry struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[domain.PeerID]*Session)}
}

// Register stores the session for its peer. A peer with a live session
// is rejected with ErrDuplicateSession; the existing session is kept.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[s.Peer()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, s.Peer().Short())
	}
	r.peers[s.Peer()] = s
	return nil
}

// Lookup returns the session for id.
func (r *Registry) Lookup(id domain.PeerID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id.Short())
	}
	return s, nil
}

// Remove drops the session for id, wiping its key, and returns it so
// the caller can finish teardown (close the conn, cancel transfers).
// Removing an absent peer is a no-op.
func (r *Registry) Remove(id domain.PeerID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[id]
	if !ok {
		return nil
	}
	delete(r.peers, id)
	s.release()
	return s
}

// List snapshots the current sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.peers))
	for _, s := range r.peers {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
