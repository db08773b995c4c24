//go:build linux

package link

import (
	"context"
	"fmt"
	"net"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
)

// PidResolver finds the host pid of a node's init process.
type PidResolver interface {
	Pid(ctx context.Context, id string) (int, error)
}

// NetnsLinkState reads and toggles node connectivity from the host by
// entering the node's network namespace, without relying on the in-node
// agent. It needs to run on the engine host with CAP_SYS_ADMIN.
type NetnsLinkState struct {
	pids PidResolver
}

func NewNetnsLinkState(pids PidResolver) *NetnsLinkState {
	return &NetnsLinkState{pids: pids}
}

// IsNetworkConnected reports whether every non-loopback link of the node is
// administratively up.
func (s *NetnsLinkState) IsNetworkConnected(ctx context.Context, id string) (bool, error) {
	connected := true
	err := s.do(ctx, id, func(links []netlink.Link) error {
		for _, l := range links {
			if l.Attrs().Flags&net.FlagUp == 0 {
				connected = false
			}
		}
		return nil
	})
	return connected, err
}

// SetNetworkConnected sets every non-loopback link of the node up or down.
// ip link set dev <if> up|down
func (s *NetnsLinkState) SetNetworkConnected(ctx context.Context, id string, up bool) error {
	return s.do(ctx, id, func(links []netlink.Link) error {
		for _, l := range links {
			var err error
			if up {
				err = netlink.LinkSetUp(l)
			} else {
				err = netlink.LinkSetDown(l)
			}
			if err != nil {
				return fmt.Errorf("failed to set link %s: %v", l.Attrs().Name, err)
			}
		}
		return nil
	})
}

func (s *NetnsLinkState) do(ctx context.Context, id string, fn func([]netlink.Link) error) error {
	pid, err := s.pids.Pid(ctx, id)
	if err != nil {
		return err
	}

	// enter container namespace
	containerNs, err := ns.GetNS(fmt.Sprintf("/proc/%d/ns/net", pid))
	if err != nil {
		return fmt.Errorf("failed to get namespace for container: %v", err)
	}
	defer containerNs.Close()

	return containerNs.Do(func(_ ns.NetNS) error {
		all, err := netlink.LinkList()
		if err != nil {
			return fmt.Errorf("failed to list links: %v", err)
		}
		links := make([]netlink.Link, 0, len(all))
		for _, l := range all {
			if l.Attrs().Flags&net.FlagLoopback != 0 {
				continue
			}
			links = append(links, l)
		}
		return fn(links)
	})
}
