package group

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
	"peerlink/internal/registry"
)

// Policy decides what Create does when some members have no established
// session. The choice is explicit at every call site.
type Policy uint8

const (
	// PolicyAbort fails creation if any member is unreachable.
	PolicyAbort Policy = iota
	// PolicyReachable creates the group with the reachable subset and
	// reports the members that were left out.
	PolicyReachable
)

// maxGroupName bounds the name carried in the wrapped-key payload.
const maxGroupName = 128

// Service is the group key manager. It holds every group this process
// belongs to, guarded by one coarse lock; updates happen only on
// create and invite, not per message.
type Service struct {
	self     domain.PeerID
	registry *registry.Registry

	mu     sync.Mutex
	groups map[domain.GroupID]*domain.Group
}

// New returns a manager for the local identity backed by the registry.
func New(self domain.PeerID, reg *registry.Registry) *Service {
	return &Service{
		self:     self,
		registry: reg,
		groups:   make(map[domain.GroupID]*domain.Group),
	}
}

// Create generates a group key, wraps it for each member under that
// member's session key, and sends the wrapped envelopes.
//
// Under PolicyAbort any unreachable member fails the call with a
// MemberUnreachableError and nothing is sent. Under PolicyReachable the
// group is created for the reachable subset and the skipped members are
// returned so the caller can surface them.
func (s *Service) Create(name string, members []domain.PeerID, policy Policy) (*domain.Group, []domain.PeerID, error) {
	if len(name) > maxGroupName {
		return nil, nil, fmt.Errorf("group name exceeds %d bytes", maxGroupName)
	}

	var reachable []*registry.Session
	var missing []domain.PeerID
	for _, m := range members {
		if m == s.self {
			continue
		}
		sess, err := s.registry.Lookup(m)
		if err != nil {
			missing = append(missing, m)
			continue
		}
		reachable = append(reachable, sess)
	}
	if len(missing) > 0 && policy == PolicyAbort {
		return nil, nil, &domain.MemberUnreachableError{Missing: missing}
	}
	if len(reachable) == 0 {
		return nil, nil, &domain.MemberUnreachableError{Missing: missing}
	}

	key, err := crypto.GenerateGroupKey()
	if err != nil {
		return nil, nil, err
	}
	g := &domain.Group{
		ID:      domain.GroupID(uuid.New()),
		Name:    name,
		Key:     key,
		Creator: s.self,
		Members: make([]domain.PeerID, 0, len(reachable)+1),
	}
	g.Members = append(g.Members, s.self)
	for _, sess := range reachable {
		g.Members = append(g.Members, sess.Peer())
	}

	payload := marshalWrap(g)
	gid := g.ID
	for _, sess := range reachable {
		if err := sess.SendSealed(domain.MsgGroupKey, s.self, &gid, payload); err != nil {
			return nil, missing, fmt.Errorf("distribute key to %s: %w", sess.Peer().Short(), err)
		}
	}

	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
	return g, missing, nil
}

// Receive stores a group key unwrapped from a MsgGroupKey payload that
// the session layer already decrypted. The sender must be the creator
// asserted inside the payload; on a repeat receipt the key must match
// what we already hold.
func (s *Service) Receive(from domain.PeerID, id domain.GroupID, payload []byte) (*domain.Group, error) {
	g, err := parseWrap(id, payload)
	if err != nil {
		return nil, err
	}
	if g.Creator != from {
		return nil, fmt.Errorf("%w: %s is not the creator of %s", domain.ErrUntrustedSender, from.Short(), id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if known, ok := s.groups[id]; ok {
		if known.Key != g.Key || known.Creator != g.Creator {
			return nil, fmt.Errorf("%w: conflicting key for known group %s", domain.ErrUntrustedSender, id)
		}
		return known, nil
	}
	s.groups[id] = g
	return g, nil
}

// Encrypt seals a group payload of the given envelope type under the
// group key with a random nonce. The envelope metadata, group ID
// included, is bound as associated data.
func (s *Service) Encrypt(id domain.GroupID, t domain.MsgType, plaintext []byte) (domain.Envelope, error) {
	g, err := s.Get(id)
	if err != nil {
		return domain.Envelope{}, err
	}
	nonce, err := crypto.RandomNonce()
	if err != nil {
		return domain.Envelope{}, err
	}
	gid := id
	env := domain.Envelope{
		Type:   t,
		Sender: s.self,
		Nonce:  nonce,
		Group:  &gid,
	}
	ct, tag, err := crypto.Seal(g.Key, nonce, plaintext, env.AssociatedData())
	if err != nil {
		return domain.Envelope{}, err
	}
	env.Ciphertext, env.Tag = ct, tag
	return env, nil
}

// Decrypt opens a group envelope with the group key, verifying its
// metadata as associated data.
func (s *Service) Decrypt(env domain.Envelope) ([]byte, error) {
	if env.Group == nil {
		return nil, fmt.Errorf("%w: group message without group id", domain.ErrMalformedEnvelope)
	}
	g, err := s.Get(*env.Group)
	if err != nil {
		return nil, err
	}
	return crypto.Open(g.Key, env.Nonce, env.Ciphertext, env.Tag, env.AssociatedData())
}

// Get returns the group for id, or ErrUnknownGroup.
func (s *Service) Get(id domain.GroupID) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGroup, id)
	}
	return g, nil
}

// List snapshots the groups this process holds keys for.
func (s *Service) List() []*domain.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

// Sessions returns the established sessions for the group's members,
// excluding the local peer. Used to fan group traffic out.
func (s *Service) Sessions(id domain.GroupID) ([]*registry.Session, error) {
	g, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	var out []*registry.Session
	for _, m := range g.Members {
		if m == s.self {
			continue
		}
		if sess, err := s.registry.Lookup(m); err == nil {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Wrapped-key payload: key(32) creator(32) nameLen(2) name
// memberCount(2) members(32 each). Lengths are explicit so parsing is
// never ambiguous.
func marshalWrap(g *domain.Group) []byte {
	buf := make([]byte, 0, 32+32+2+len(g.Name)+2+32*len(g.Members))
	buf = append(buf, g.Key[:]...)
	buf = append(buf, g.Creator[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(g.Name)))
	buf = append(buf, g.Name...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(g.Members)))
	for _, m := range g.Members {
		buf = append(buf, m[:]...)
	}
	return buf
}

func parseWrap(id domain.GroupID, payload []byte) (*domain.Group, error) {
	malformed := func(what string) error {
		return fmt.Errorf("%w: group key payload: %s", domain.ErrMalformedEnvelope, what)
	}
	if len(payload) < 32+32+2 {
		return nil, malformed("too short")
	}
	g := &domain.Group{ID: id}
	copy(g.Key[:], payload)
	copy(g.Creator[:], payload[32:])
	off := 64
	nameLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if nameLen > maxGroupName || len(payload) < off+nameLen+2 {
		return nil, malformed("bad name length")
	}
	g.Name = string(payload[off : off+nameLen])
	off += nameLen
	count := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) != off+32*count {
		return nil, malformed("bad member count")
	}
	g.Members = make([]domain.PeerID, count)
	for i := range g.Members {
		copy(g.Members[i][:], payload[off:])
		off += 32
	}
	return g, nil
}
