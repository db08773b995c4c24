package pkg

import (
	"context"

	log "github.com/sirupsen/logrus"

	"emuctl/api"
	"emuctl/pkg/config"
	"emuctl/pkg/console"
	"emuctl/pkg/controller"
	"emuctl/pkg/link"
	"emuctl/pkg/meta"
	"emuctl/pkg/node"
	"emuctl/pkg/server"
	"emuctl/pkg/sniff"
)

// Manager owns the control plane components and wires them together: the
// engine connection, the emulator inventory, the link manager, the node
// agent relay, the capture hub and the console sessions.
type Manager struct {
	cm       *node.ContainerManager
	inv      *node.Inventory
	lm       *link.LinkManager
	netState server.NetState
	ctl      *controller.Controller
	sniffer  *sniff.Sniffer
	hub      *sniff.Hub
	sessions *console.SessionManager
}

// NewManager connects to the container engine described by cfg and builds
// every component on top of it.
func NewManager(cfg *config.Config) (*Manager, error) {
	cm, err := node.NewContainerManager(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}

	sessions := console.NewSessionManager(cm)
	inv := node.NewInventory(cm, meta.NewExtractor(cfg.Labels.Prefix), sessions)
	ctl := controller.NewController(cm, cfg.Agent.Path)
	sniffer := sniff.NewSniffer(cm, cfg.Capture.Interface, cfg.Capture.Format)

	var netState server.NetState = ctl
	if cfg.Link.Backend == config.LinkBackendNetlink {
		netState = link.NewNetnsLinkState(cm)
	}

	log.WithFields(log.Fields{
		"docker":  cfg.Docker.Host,
		"link":    cfg.Link.Backend,
		"capture": cfg.Capture.Format,
	}).Debug("control plane configured")

	return &Manager{
		cm:       cm,
		inv:      inv,
		lm:       link.NewLinkManager(inv, cm),
		netState: netState,
		ctl:      ctl,
		sniffer:  sniffer,
		hub:      sniff.NewHub(sniffer, inv),
		sessions: sessions,
	}, nil
}

// Server builds the HTTP API over the managed components.
func (m *Manager) Server() *server.Server {
	return server.NewServer(server.Options{
		Inventory: m.inv,
		Links:     m.lm,
		NetState:  m.netState,
		Peers:     m.ctl,
		Capture:   m.hub,
		Consoles:  m.sessions,
	})
}

func (m *Manager) Nodes(ctx context.Context) ([]api.Node, error) {
	return m.inv.Nodes(ctx)
}

func (m *Manager) Networks(ctx context.Context) ([]api.NetworkSegment, error) {
	return m.inv.Segments(ctx)
}

func (m *Manager) GetProfile(ctx context.Context, netPrefix string) (api.ImpairmentProfile, error) {
	return m.lm.GetProfile(ctx, netPrefix)
}

// SetProfile validates req and applies it to every member of the network.
func (m *Manager) SetProfile(ctx context.Context, netPrefix string, req link.ShapeRequest) ([]api.NodeResult, bool, error) {
	p, err := req.Profile()
	if err != nil {
		return nil, false, err
	}
	return m.lm.SetProfile(ctx, netPrefix, p)
}

// Destroy stops running captures and releases the engine connection. The
// emulated nodes themselves are left untouched.
func (m *Manager) Destroy() {
	m.sniffer.Stop()
	if err := m.cm.Close(); err != nil {
		log.WithError(err).Warn("error closing docker client")
	}
}
