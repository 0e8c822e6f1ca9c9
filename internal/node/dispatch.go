package node

import (
	"fmt"

	"go.uber.org/zap"

	"peerlink/internal/domain"
	"peerlink/internal/registry"
)

// dispatch routes one established-session frame. It returns done=true
// when the connection must be torn down (graceful disconnect or a
// protocol violation) and a non-nil error for frames that are dropped
// but leave the session alive.
func (n *Node) dispatch(sess *registry.Session, env domain.Envelope) (done bool, err error) {
	switch env.Type {
	case domain.MsgChat:
		plain, err := sess.Open(env)
		if err != nil {
			return false, err
		}
		n.emit(domain.MessageReceived{Peer: sess.Peer(), Text: string(plain)})
		return false, nil

	case domain.MsgGroupKey:
		if env.Group == nil {
			return false, fmt.Errorf("%w: group key without group id", domain.ErrMalformedEnvelope)
		}
		plain, err := sess.Open(env)
		if err != nil {
			return false, err
		}
		g, err := n.groups.Receive(sess.Peer(), *env.Group, plain)
		if err != nil {
			return false, err
		}
		n.log.Info("group key received",
			zap.String("group", g.Name),
			zap.String("from", sess.Peer().Short()))
		n.emit(domain.GroupInvite{Group: g.ID, Name: g.Name, From: sess.Peer()})
		return false, nil

	case domain.MsgGroupMessage:
		plain, err := n.groups.Decrypt(env)
		if err != nil {
			return false, err
		}
		n.emit(domain.GroupMessageReceived{Group: *env.Group, Sender: env.Sender, Text: string(plain)})
		return false, nil

	case domain.MsgFileOffer:
		plain, err := n.openEither(sess, env)
		if err != nil {
			return false, err
		}
		if _, err := n.transfers.OnOffer(env.Sender, plain); err != nil {
			return false, err
		}
		return false, nil

	case domain.MsgFileChunk:
		plain, err := n.openEither(sess, env)
		if err != nil {
			return false, err
		}
		return false, n.transfers.OnChunk(env.Sender, plain)

	case domain.MsgDisconnect:
		if _, err := sess.Open(env); err != nil {
			// An unauthenticated goodbye is ignored; the real teardown
			// arrives as EOF if the peer actually left.
			return false, err
		}
		n.log.Info("peer said goodbye", zap.String("peer", sess.Peer().Short()))
		return true, nil

	case domain.MsgHandshake, domain.MsgHandshakeAck:
		n.log.Warn("handshake frame on established session",
			zap.String("peer", sess.Peer().Short()))
		return true, nil
	}
	return false, fmt.Errorf("%w: type %d", domain.ErrMalformedEnvelope, env.Type)
}

// openEither decrypts a file payload under the group key when the
// envelope is group traffic, or the session key otherwise.
func (n *Node) openEither(sess *registry.Session, env domain.Envelope) ([]byte, error) {
	if env.Group != nil {
		return n.groups.Decrypt(env)
	}
	return sess.Open(env)
}
