package link

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"emuctl/api"
	"emuctl/pkg/node"
)

// Inventory resolves segments and their member nodes.
type Inventory interface {
	Segment(ctx context.Context, prefix string) (api.NetworkSegment, error)
	Members(ctx context.Context, seg api.NetworkSegment) ([]api.Node, error)
}

// LinkManager reads and changes the impairment of emulated links. The kernel
// is the only source of truth; nothing is cached between calls.
type LinkManager struct {
	inv  Inventory
	exec node.Executor
}

func NewLinkManager(inv Inventory, exec node.Executor) *LinkManager {
	return &LinkManager{
		inv:  inv,
		exec: exec,
	}
}

// GetProfile reads the qdisc of the segment's interface on its first member
// node.
func (lm *LinkManager) GetProfile(ctx context.Context, netPrefix string) (api.ImpairmentProfile, error) {
	seg, err := lm.inv.Segment(ctx, netPrefix)
	if err != nil {
		return api.ImpairmentProfile{}, err
	}
	members, err := lm.inv.Members(ctx, seg)
	if err != nil {
		return api.ImpairmentProfile{}, err
	}
	if len(members) == 0 {
		return api.ImpairmentProfile{}, errors.Errorf("network %s has no attached nodes", seg.Meta.EmulatorInfo.Name)
	}

	out, err := lm.exec.Exec(ctx, members[0].ID, ShowArgs(seg.Meta.EmulatorInfo.Name))
	if err != nil {
		return api.ImpairmentProfile{}, err
	}
	return Decode(out), nil
}

// SetProfile replaces the netem qdisc of the segment's interface on every
// member node, one node at a time in inventory order. A profile with nothing
// set is a no-op and returns false without touching the engine.
//
// A relay failure on one node does not stop the others and nothing is rolled
// back; every node's outcome is reported in order.
func (lm *LinkManager) SetProfile(ctx context.Context, netPrefix string, p api.ImpairmentProfile) ([]api.NodeResult, bool, error) {
	if p.Empty() {
		return nil, false, nil
	}

	seg, err := lm.inv.Segment(ctx, netPrefix)
	if err != nil {
		return nil, false, err
	}
	argv, _ := Encode(seg.Meta.EmulatorInfo.Name, p)

	members, err := lm.inv.Members(ctx, seg)
	if err != nil {
		return nil, false, err
	}

	results := make([]api.NodeResult, 0, len(members))
	for _, m := range members {
		out, err := lm.exec.Exec(ctx, m.ID, argv)
		r := api.NodeResult{Node: m.ID, Output: out}
		if err != nil {
			log.WithFields(log.Fields{
				"network": seg.Meta.EmulatorInfo.Name,
				"node":    m.Meta.EmulatorInfo.Name,
			}).WithError(err).Warn("failed to apply impairment")
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results, true, nil
}
