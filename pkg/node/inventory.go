package node

import (
	"context"

	"emuctl/api"
	"emuctl/pkg/meta"
	"emuctl/pkg/resolve"
)

// SessionChecker reports whether a node has an open console session.
type SessionChecker interface {
	HasSession(id string) bool
}

// Inventory is the emulator's view of the engine: only containers and
// networks carrying an emulator name are ever returned.
type Inventory struct {
	engine   Engine
	meta     *meta.Extractor
	sessions SessionChecker
}

func NewInventory(engine Engine, extractor *meta.Extractor, sessions SessionChecker) *Inventory {
	return &Inventory{
		engine:   engine,
		meta:     extractor,
		sessions: sessions,
	}
}

// Nodes lists emulator nodes in engine order.
func (inv *Inventory) Nodes(ctx context.Context) ([]api.Node, error) {
	containers, err := inv.engine.Containers(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]api.Node, 0, len(containers))
	for _, c := range containers {
		info := inv.meta.NodeInfo(c.Labels)
		if info.Name == "" {
			continue
		}
		nodes = append(nodes, api.Node{
			Container: c,
			Meta: api.NodeMeta{
				HasSession:   inv.sessions != nil && inv.sessions.HasSession(c.ID),
				EmulatorInfo: info,
			},
		})
	}
	return nodes, nil
}

// Node resolves a container id prefix to exactly one emulator node.
func (inv *Inventory) Node(ctx context.Context, prefix string) (api.Node, error) {
	nodes, err := inv.Nodes(ctx)
	if err != nil {
		return api.Node{}, err
	}
	return resolve.One("container", prefix, nodes, func(n api.Node) string { return n.ID })
}

// Segments lists emulator networks in engine order.
func (inv *Inventory) Segments(ctx context.Context) ([]api.NetworkSegment, error) {
	networks, err := inv.engine.Networks(ctx)
	if err != nil {
		return nil, err
	}

	segments := make([]api.NetworkSegment, 0, len(networks))
	for _, n := range networks {
		info := inv.meta.NetworkInfo(n.Labels)
		if info.Name == "" {
			continue
		}
		segments = append(segments, api.NetworkSegment{
			Network: n,
			Meta:    api.NetworkMeta{EmulatorInfo: info},
		})
	}
	return segments, nil
}

// Segment resolves a network id prefix to exactly one emulator network.
func (inv *Inventory) Segment(ctx context.Context, prefix string) (api.NetworkSegment, error) {
	segments, err := inv.Segments(ctx)
	if err != nil {
		return api.NetworkSegment{}, err
	}
	return resolve.One("network", prefix, segments, func(s api.NetworkSegment) string { return s.ID })
}

// Members lists the emulator nodes attached to the segment, in engine order.
func (inv *Inventory) Members(ctx context.Context, seg api.NetworkSegment) ([]api.Node, error) {
	nodes, err := inv.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	var members []api.Node
	for _, n := range nodes {
		if n.AttachedTo(seg.ID) {
			members = append(members, n)
		}
	}
	return members, nil
}
