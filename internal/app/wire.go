package app

import (
	"fmt"

	"go.uber.org/zap"

	"peerlink/internal/domain"
	"peerlink/internal/node"
	"peerlink/internal/registry"
	"peerlink/internal/services/group"
	"peerlink/internal/services/transfer"
	"peerlink/internal/store"
)

// Wire bundles the store, services, and node for the CLI. The node is
// built lazily by StartNode because it needs the unsealed identity.
type Wire struct {
	Config   Config
	Log      *zap.Logger
	Identity *store.IdentityStore
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	cfg = cfg.withDefaults()

	log, err := buildLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return &Wire{
		Config:   cfg,
		Log:      log,
		Identity: store.NewIdentityStore(cfg.Home),
	}, nil
}

// StartNode assembles the runtime around an unsealed identity and
// starts listening on the configured port.
func (w *Wire) StartNode(id domain.Identity) (*node.Node, error) {
	reg := registry.New()
	groups := group.New(id.ID(), reg)

	var n *node.Node
	engine := transfer.NewEngine(w.Config.DownloadsDir, w.Config.ChunkSize, func(ev domain.Event) {
		n.Emit(ev)
	})
	n = node.New(id, reg, groups, engine, w.Log, w.Config.HandshakeTimeout)

	if err := n.Start(fmt.Sprintf(":%d", w.Config.Port)); err != nil {
		return nil, err
	}
	return n, nil
}

// Close flushes the logger.
func (w *Wire) Close() {
	_ = w.Log.Sync()
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
