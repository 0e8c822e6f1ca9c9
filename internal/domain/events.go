package domain

// Event is a notification delivered asynchronously to the front end.
// The set is closed; front ends switch over the concrete types.
type Event interface{ event() }

// PeerConnected fires once a handshake reaches Established and the
// session is registered.
type PeerConnected struct {
	Peer PeerID
	Name string
}

// PeerDisconnected fires when a session is removed, whether by a
// graceful disconnect notice or a dropped connection.
type PeerDisconnected struct {
	Peer PeerID
	Name string
}

// HandshakeFailed reports a connection torn down before Established.
type HandshakeFailed struct {
	Addr string
	Err  error
}

// MessageReceived carries a decrypted direct chat message.
type MessageReceived struct {
	Peer PeerID
	Text string
}

// GroupInvite fires when a wrapped group key has been received and
// unwrapped successfully.
type GroupInvite struct {
	Group GroupID
	Name  string
	From  PeerID
}

// GroupMessageReceived carries a decrypted group message. Sender is the
// envelope's sender identity; the group key only proves membership, not
// which member authored the message.
type GroupMessageReceived struct {
	Group  GroupID
	Sender PeerID
	Text   string
}

// TransferStarted fires when a file offer is accepted for receive or a
// send begins.
type TransferStarted struct {
	ID   TransferID
	Name string
	Size int64
}

// TransferProgress reports bytes moved so far for one transfer.
type TransferProgress struct {
	ID    TransferID
	Done  int64
	Total int64
}

// TransferComplete reports a fully reassembled and verified file.
type TransferComplete struct {
	ID   TransferID
	Path string
}

// TransferFailed reports a discarded transfer.
type TransferFailed struct {
	ID  TransferID
	Err error
}

func (PeerConnected) event()        {}
func (PeerDisconnected) event()     {}
func (HandshakeFailed) event()      {}
func (MessageReceived) event()      {}
func (GroupInvite) event()          {}
func (GroupMessageReceived) event() {}
func (TransferStarted) event()      {}
func (TransferProgress) event()     {}
func (TransferComplete) event()     {}
func (TransferFailed) event()       {}
