package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"peerlink/internal/crypto"
	"peerlink/internal/discovery"
	"peerlink/internal/domain"
	"peerlink/internal/node"
	"peerlink/internal/services/group"
)

const browseTimeout = 5 * time.Second

func chatCmd() *cobra.Command {
	var announce bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the node and an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Identity.Load(passphrase)
			if err != nil {
				return err
			}

			n, err := wire.StartNode(id)
			if err != nil {
				return err
			}
			defer n.Close()

			if announce {
				ann, err := discovery.Announce(id.Name, wire.Config.Port, wire.Log)
				if err != nil {
					return err
				}
				defer ann.Shutdown()
			}

			fmt.Printf("%s listening on %s (fingerprint %s)\n",
				id.Name, n.Addr(), crypto.Fingerprint(id.Pub[:]))

			go printEvents(n)
			repl(n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&announce, "announce", true, "announce this node over mDNS")
	return cmd
}

// printEvents renders the node's event stream. Transfer progress gets a
// byte-rate progress bar keyed by transfer ID.
func printEvents(n *node.Node) {
	bars := make(map[domain.TransferID]*progressbar.ProgressBar)
	for ev := range n.Events() {
		switch e := ev.(type) {
		case domain.PeerConnected:
			fmt.Printf("\n* %s connected (%s)\n> ", e.Name, e.Peer.Short())
		case domain.PeerDisconnected:
			fmt.Printf("\n* %s disconnected\n> ", e.Name)
		case domain.HandshakeFailed:
			fmt.Printf("\n* handshake with %s failed: %v\n> ", e.Addr, e.Err)
		case domain.MessageReceived:
			fmt.Printf("\n[%s] %s\n> ", e.Peer.Short(), e.Text)
		case domain.GroupInvite:
			fmt.Printf("\n* joined group %q (invited by %s)\n> ", e.Name, e.From.Short())
		case domain.GroupMessageReceived:
			fmt.Printf("\n[%s] %s: %s\n> ", groupLabel(n, e.Group), e.Sender.Short(), e.Text)
		case domain.TransferStarted:
			bars[e.ID] = progressbar.DefaultBytes(e.Size, e.Name)
		case domain.TransferProgress:
			if bar, ok := bars[e.ID]; ok {
				_ = bar.Set64(e.Done)
			}
		case domain.TransferComplete:
			if bar, ok := bars[e.ID]; ok {
				_ = bar.Finish()
				delete(bars, e.ID)
			}
			if e.Path != "" {
				fmt.Printf("\n* transfer complete: %s\n> ", e.Path)
			}
		case domain.TransferFailed:
			if bar, ok := bars[e.ID]; ok {
				_ = bar.Close()
				delete(bars, e.ID)
			}
			fmt.Printf("\n* transfer failed: %v\n> ", e.Err)
		}
	}
}

func repl(n *node.Node) {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			return
		}
		if err := runCommand(n, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Print("> ")
	}
}

func runCommand(n *node.Node, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Println(`/connect <host:port>        dial a peer
/discover                   list nodes on the LAN
/peers                      list connected peers
/msg <peer> <text>          send a direct message
/group <name> <peer>...     create a group
/groups                     list groups
/gmsg <name> <text>         send a group message
/sendfile <peer> <path>     send a file to one peer
/gsendfile <name> <path>    send a file to a group
/disconnect <peer>          close a peer session
/quit                       exit`)
		return nil

	case "/connect":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /connect <host:port>")
		}
		peer, err := n.Connect(context.Background(), fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("connected to %s\n", peer.Short())
		return nil

	case "/discover":
		peers, err := discovery.Browse(context.Background(), browseTimeout, wire.Log)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			fmt.Println("no nodes found")
			return nil
		}
		for _, p := range peers {
			fmt.Printf("  %-20s %s\n", p.Instance, p.Addr)
		}
		return nil

	case "/peers":
		sessions := n.Peers()
		if len(sessions) == 0 {
			fmt.Println("no peers connected")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("  %-16s %s  %s\n", s.Name(), s.Peer().Short(), s.Conn().RemoteAddr())
		}
		return nil

	case "/msg":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /msg <peer> <text>")
		}
		peer, err := resolvePeer(n, fields[1])
		if err != nil {
			return err
		}
		return n.SendMessage(peer, strings.Join(fields[2:], " "))

	case "/group":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /group <name> <peer>...")
		}
		var members []domain.PeerID
		for _, ref := range fields[2:] {
			peer, err := resolvePeer(n, ref)
			if err != nil {
				return err
			}
			members = append(members, peer)
		}
		g, missing, err := n.CreateGroup(fields[1], members, group.PolicyReachable)
		if err != nil {
			return err
		}
		fmt.Printf("created group %q with %d members\n", g.Name, len(g.Members))
		for _, m := range missing {
			fmt.Printf("  skipped unreachable member %s\n", m.Short())
		}
		return nil

	case "/groups":
		groups := n.Groups()
		if len(groups) == 0 {
			fmt.Println("no groups")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("  %-16s %d members (created by %s)\n", g.Name, len(g.Members), g.Creator.Short())
		}
		return nil

	case "/gmsg":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /gmsg <name> <text>")
		}
		g, err := resolveGroup(n, fields[1])
		if err != nil {
			return err
		}
		return n.SendGroupMessage(g.ID, strings.Join(fields[2:], " "))

	case "/sendfile":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /sendfile <peer> <path>")
		}
		peer, err := resolvePeer(n, fields[1])
		if err != nil {
			return err
		}
		_, err = n.SendFile(peer, fields[2])
		return err

	case "/gsendfile":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /gsendfile <name> <path>")
		}
		g, err := resolveGroup(n, fields[1])
		if err != nil {
			return err
		}
		_, err = n.SendFileToGroup(g.ID, fields[2])
		return err

	case "/disconnect":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /disconnect <peer>")
		}
		peer, err := resolvePeer(n, fields[1])
		if err != nil {
			return err
		}
		return n.Disconnect(peer)
	}
	return fmt.Errorf("unknown command %s (try /help)", fields[0])
}

// resolvePeer matches ref against connected peers by display name or a
// prefix of the short fingerprint.
func resolvePeer(n *node.Node, ref string) (domain.PeerID, error) {
	var matches []domain.PeerID
	for _, s := range n.Peers() {
		if s.Name() == ref || strings.HasPrefix(s.Peer().Short(), ref) {
			matches = append(matches, s.Peer())
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return domain.PeerID{}, fmt.Errorf("no connected peer matches %q", ref)
	default:
		return domain.PeerID{}, fmt.Errorf("%q is ambiguous, use more of the fingerprint", ref)
	}
}

// groupLabel prefers the group's name over its hex ID.
func groupLabel(n *node.Node, id domain.GroupID) string {
	for _, g := range n.Groups() {
		if g.ID == id {
			return g.Name
		}
	}
	return id.String()[:8]
}

func resolveGroup(n *node.Node, name string) (*domain.Group, error) {
	for _, g := range n.Groups() {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("no group named %q", name)
}
