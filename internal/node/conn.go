package node

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"peerlink/internal/domain"
	"peerlink/internal/protocol/handshake"
	"peerlink/internal/protocol/wire"
	"peerlink/internal/registry"
)

// maxDecryptFailures is how many consecutive undecryptable frames a
// session tolerates before the connection is torn down. A single bad
// frame is logged and dropped; a run of them means the channel state
// has diverged and cannot recover.
const maxDecryptFailures = 3

// runConnection drives an inbound connection through the handshake and
// then its read loop. The caller owns conn until this returns.
func (n *Node) runConnection(conn net.Conn) (domain.PeerID, error) {
	sess, err := n.handshake(conn)
	if err != nil {
		conn.Close()
		n.emit(domain.HandshakeFailed{Addr: conn.RemoteAddr().String(), Err: err})
		return domain.PeerID{}, err
	}
	n.readLoop(sess)
	return sess.Peer(), nil
}

// handshake exchanges hellos and acknowledgements on a fresh connection
// and registers the resulting session. Both dialer and listener run the
// same exchange; there is no initiator-specific path.
func (n *Node) handshake(conn net.Conn) (*registry.Session, error) {
	m := handshake.New(n.identity)

	if err := conn.SetDeadline(time.Now().Add(n.handshakeTimeout)); err != nil {
		return nil, err
	}
	hello, err := m.Hello()
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	for m.State() != handshake.Established {
		env, err := wire.ReadFrame(conn)
		if err != nil {
			m.Fail()
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: timed out after %s", domain.ErrHandshakeFailed, n.handshakeTimeout)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrHandshakeFailed, err)
		}
		switch env.Type {
		case domain.MsgHandshake:
			ack, err := m.OnHello(env)
			if err != nil {
				return nil, err
			}
			if err := wire.WriteFrame(conn, ack); err != nil {
				m.Fail()
				return nil, fmt.Errorf("send ack: %w", err)
			}
		case domain.MsgHandshakeAck:
			if err := m.OnAck(env); err != nil {
				return nil, err
			}
		default:
			m.Fail()
			return nil, fmt.Errorf("%w: %s frame before key exchange finished", domain.ErrHandshakeFailed, env.Type)
		}
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	sess := registry.NewSession(m.Remote(), m.RemoteName(), m.SessionKey(), conn, m.Counter(), m.NextSequence())
	if err := n.reg.Register(sess); err != nil {
		// A session for this peer already exists; the established
		// channel wins and the new connection is dropped.
		return nil, err
	}
	n.log.Info("peer connected",
		zap.String("peer", sess.Peer().Short()),
		zap.String("name", sess.Name()),
		zap.String("addr", conn.RemoteAddr().String()))
	n.emit(domain.PeerConnected{Peer: sess.Peer(), Name: sess.Name()})
	return sess, nil
}

// readLoop consumes frames for one established session until the
// connection drops, the peer says goodbye, or decryption failures pile
// up. Teardown always removes the session and discards partial inbound
// transfers from this peer.
func (n *Node) readLoop(sess *registry.Session) {
	peer := sess.Peer()
	defer func() {
		sess.Conn().Close()
		if removed := n.reg.Remove(peer); removed != nil {
			n.transfers.AbortPeer(peer)
			n.emit(domain.PeerDisconnected{Peer: peer, Name: sess.Name()})
			n.log.Info("peer disconnected", zap.String("peer", peer.Short()))
		}
	}()

	failures := 0
	for {
		env, err := wire.ReadFrame(sess.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				n.log.Debug("read frame", zap.String("peer", peer.Short()), zap.Error(err))
			}
			return
		}
		if env.Sender != peer {
			n.log.Warn("frame sender does not match session peer",
				zap.String("peer", peer.Short()),
				zap.String("sender", env.Sender.Short()))
			return
		}

		done, err := n.dispatch(sess, env)
		if done {
			return
		}
		if err != nil {
			failures++
			n.log.Warn("dropping frame",
				zap.String("peer", peer.Short()),
				zap.String("type", env.Type.String()),
				zap.Error(err))
			if failures >= maxDecryptFailures {
				n.log.Warn("too many bad frames, closing session",
					zap.String("peer", peer.Short()))
				return
			}
			continue
		}
		failures = 0
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
