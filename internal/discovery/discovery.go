package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceName is the mDNS service type announced on the LAN.
	ServiceName = "_peerlink._tcp"
	// Domain is the mDNS domain; "local" is standard.
	Domain = "local"
)

// Peer is one node found on the LAN.
type Peer struct {
	Instance string // announced display name
	Addr     string // host:port ready for dialing
}

// Announcer keeps the local node visible on the LAN until Shutdown.
type Announcer struct {
	server *zeroconf.Server
	log    *zap.Logger
}

// Announce registers the node under instance on the given port.
func Announce(instance string, port int, log *zap.Logger) (*Announcer, error) {
	server, err := zeroconf.Register(instance, ServiceName, Domain, port, []string{"v=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	log.Info("announcing on lan",
		zap.String("instance", instance),
		zap.Int("port", port))
	return &Announcer{server: server, log: log}, nil
}

// Shutdown withdraws the announcement.
func (a *Announcer) Shutdown() {
	a.server.Shutdown()
	a.log.Debug("mdns announcement withdrawn")
}

// Browse collects every node visible on the LAN within timeout.
func Browse(ctx context.Context, timeout time.Duration, log *zap.Logger) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceName, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	var peers []Peer
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		p := Peer{
			Instance: entry.Instance,
			Addr:     fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port),
		}
		log.Debug("found peer on lan",
			zap.String("instance", p.Instance),
			zap.String("addr", p.Addr))
		peers = append(peers, p)
	}
	return peers, nil
}
