package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"peerlink/internal/domain"
	"peerlink/internal/registry"
	"peerlink/internal/services/group"
	"peerlink/internal/services/transfer"
)

// DefaultHandshakeTimeout bounds how long a fresh connection may sit
// without completing the key exchange.
const DefaultHandshakeTimeout = 30 * time.Second

// eventBuffer is the capacity of the event channel. A slow front end
// drops events rather than stalling read loops.
const eventBuffer = 128

// Node owns the listener and every live peer connection.
type Node struct {
	identity  domain.Identity
	reg       *registry.Registry
	groups    *group.Service
	transfers *transfer.Engine
	log       *zap.Logger

	handshakeTimeout time.Duration

	// evMu guards events against a late Emit from a send goroutine
	// racing channel close during shutdown.
	evMu     sync.RWMutex
	events   chan domain.Event
	evClosed bool

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a node from its already-constructed services. The
// transfer engine must have been built with this node's Emit as its
// event sink for progress events to reach the front end.
func New(id domain.Identity, reg *registry.Registry, groups *group.Service, transfers *transfer.Engine, log *zap.Logger, handshakeTimeout time.Duration) *Node {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		identity:         id,
		reg:              reg,
		groups:           groups,
		transfers:        transfers,
		log:              log,
		handshakeTimeout: handshakeTimeout,
		events:           make(chan domain.Event, eventBuffer),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start listens on addr and accepts inbound connections until Close.
func (n *Node) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	n.listener = ln
	n.mu.Unlock()

	n.log.Info("listening", zap.String("addr", ln.Addr().String()))
	n.wg.Add(1)
	go n.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (n *Node) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

func (n *Node) acceptLoop(ln net.Listener) {
	defer n.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-n.ctx.Done():
			default:
				n.log.Warn("accept", zap.Error(err))
			}
			return
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if _, err := n.runConnection(conn); err != nil {
				n.log.Debug("inbound connection ended", zap.Error(err))
			}
		}()
	}
}

// Connect dials addr, completes the handshake, and registers the
// session. It returns once the peer is usable; the read loop continues
// in the background.
func (n *Node) Connect(ctx context.Context, addr string) (domain.PeerID, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.PeerID{}, fmt.Errorf("dial %s: %w", addr, err)
	}

	sess, err := n.handshake(conn)
	if err != nil {
		conn.Close()
		n.emit(domain.HandshakeFailed{Addr: addr, Err: err})
		return domain.PeerID{}, err
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.readLoop(sess)
	}()
	return sess.Peer(), nil
}

// Events returns the channel the front end consumes. The channel closes
// when the node shuts down.
func (n *Node) Events() <-chan domain.Event { return n.events }

// Emit publishes an event, dropping it if the front end has fallen
// eventBuffer events behind. Exposed so the transfer engine can share
// the node's event stream.
func (n *Node) Emit(ev domain.Event) { n.emit(ev) }

func (n *Node) emit(ev domain.Event) {
	n.evMu.RLock()
	defer n.evMu.RUnlock()
	if n.evClosed {
		return
	}
	select {
	case n.events <- ev:
	default:
		n.log.Warn("event dropped", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

// SendMessage seals text under the session key for peer and sends it.
func (n *Node) SendMessage(peer domain.PeerID, text string) error {
	sess, err := n.reg.Lookup(peer)
	if err != nil {
		return err
	}
	return sess.SendSealed(domain.MsgChat, n.identity.ID(), nil, []byte(text))
}

// CreateGroup builds a group and distributes its key to each reachable
// member over their session channel.
func (n *Node) CreateGroup(name string, members []domain.PeerID, policy group.Policy) (*domain.Group, []domain.PeerID, error) {
	return n.groups.Create(name, members, policy)
}

// SendGroupMessage seals text once under the group key and forwards the
// envelope to every member with a live session.
func (n *Node) SendGroupMessage(id domain.GroupID, text string) error {
	env, err := n.groups.Encrypt(id, domain.MsgGroupMessage, []byte(text))
	if err != nil {
		return err
	}
	sessions, err := n.groups.Sessions(id)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := sess.Forward(env); err != nil {
			n.log.Warn("group forward",
				zap.String("peer", sess.Peer().Short()),
				zap.Error(err))
		}
	}
	return nil
}

// SendFile streams path to one peer over the session channel.
func (n *Node) SendFile(peer domain.PeerID, path string) (domain.TransferID, error) {
	sess, err := n.reg.Lookup(peer)
	if err != nil {
		return domain.TransferID{}, err
	}
	self := n.identity.ID()
	return n.transfers.BeginSend(path, func(t domain.MsgType, payload []byte) error {
		return sess.SendSealed(t, self, nil, payload)
	})
}

// SendFileToGroup streams path to every reachable member of the group.
// Each payload is sealed once under the group key and forwarded, so the
// cost does not multiply with membership.
func (n *Node) SendFileToGroup(id domain.GroupID, path string) (domain.TransferID, error) {
	if _, err := n.groups.Get(id); err != nil {
		return domain.TransferID{}, err
	}
	return n.transfers.BeginSend(path, func(t domain.MsgType, payload []byte) error {
		env, err := n.groups.Encrypt(id, t, payload)
		if err != nil {
			return err
		}
		sessions, err := n.groups.Sessions(id)
		if err != nil {
			return err
		}
		// A write failure to one member must not kill the stream for
		// the rest; the failing member's own teardown discards its
		// partial transfer.
		for _, sess := range sessions {
			if err := sess.Forward(env); err != nil {
				n.log.Warn("group transfer forward",
					zap.String("peer", sess.Peer().Short()),
					zap.Error(err))
			}
		}
		return nil
	})
}

// Groups lists the groups this node belongs to.
func (n *Node) Groups() []*domain.Group { return n.groups.List() }

// Peers lists the live sessions.
func (n *Node) Peers() []*registry.Session { return n.reg.List() }

// Disconnect notifies peer and tears the session down.
func (n *Node) Disconnect(peer domain.PeerID) error {
	sess, err := n.reg.Lookup(peer)
	if err != nil {
		return err
	}
	if err := sess.SendSealed(domain.MsgDisconnect, n.identity.ID(), nil, nil); err != nil {
		n.log.Debug("disconnect notice", zap.Error(err))
	}
	return sess.Conn().Close()
}

// Close stops the listener, closes every connection, and waits for all
// goroutines. The event channel is closed last.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	ln := n.listener
	n.mu.Unlock()

	n.cancel()
	if ln != nil {
		ln.Close()
	}
	for _, sess := range n.reg.List() {
		sess.Conn().Close()
	}
	n.wg.Wait()

	n.evMu.Lock()
	n.evClosed = true
	close(n.events)
	n.evMu.Unlock()
	return nil
}
