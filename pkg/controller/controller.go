// Package controller relays connectivity and routing-peer requests to the
// control agent running inside every emulator node.
//
// The agent is invoked as "<agent> <command> [args...]" and prints a JSON
// reply {"ok": bool, "result": ...} framed by marker lines:
//
//	_BEGIN_RESULT_
//	{"ok":true,"result":"up"}
//	_END_RESULT_
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"emuctl/api"
	"emuctl/pkg/node"
)

const (
	DefaultAgentPath = "/seedemu_worker"

	beginMarker = "_BEGIN_RESULT_"
	endMarker   = "_END_RESULT_"
)

// AgentError is a request the agent received and refused.
type AgentError struct {
	Node    string
	Command string
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent on %s failed %s: %s", e.Node, e.Command, e.Message)
}

type Controller struct {
	exec  node.Executor
	agent string
}

func NewController(exec node.Executor, agentPath string) *Controller {
	if agentPath == "" {
		agentPath = DefaultAgentPath
	}
	return &Controller{
		exec:  exec,
		agent: agentPath,
	}
}

type reply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

func (c *Controller) call(ctx context.Context, id, command string, args ...string) (json.RawMessage, error) {
	argv := append([]string{c.agent, command}, args...)
	out, err := c.exec.Exec(ctx, id, argv)
	if err != nil {
		return nil, err
	}

	payload, err := extractResult(out)
	if err != nil {
		return nil, errors.Wrapf(err, "agent on %s, command %s", id, command)
	}

	var r reply
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, errors.Wrapf(err, "agent on %s, command %s: malformed reply", id, command)
	}
	if !r.OK {
		var msg string
		if json.Unmarshal(r.Result, &msg) != nil {
			msg = string(r.Result)
		}
		return nil, &AgentError{Node: id, Command: command, Message: msg}
	}
	return r.Result, nil
}

func extractResult(out string) (string, error) {
	begin := strings.Index(out, beginMarker)
	if begin < 0 {
		return "", errors.Errorf("no result in agent output %q", strings.TrimSpace(out))
	}
	rest := out[begin+len(beginMarker):]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		return "", errors.New("agent result is truncated")
	}
	return strings.TrimSpace(rest[:end]), nil
}

// IsNetworkConnected reports whether the node's links are up.
func (c *Controller) IsNetworkConnected(ctx context.Context, id string) (bool, error) {
	res, err := c.call(ctx, id, "net_status")
	if err != nil {
		return false, err
	}
	var status string
	if err := json.Unmarshal(res, &status); err != nil {
		return false, errors.Wrap(err, "malformed net_status result")
	}
	return status == "up", nil
}

// SetNetworkConnected brings the node's links up or down.
func (c *Controller) SetNetworkConnected(ctx context.Context, id string, up bool) error {
	command := "net_down"
	if up {
		command = "net_up"
	}
	_, err := c.call(ctx, id, command)
	return err
}

// ListBgpPeers lists the routing peers of the node's routing daemon.
func (c *Controller) ListBgpPeers(ctx context.Context, id string) ([]api.BgpPeer, error) {
	res, err := c.call(ctx, id, "bgp_list")
	if err != nil {
		return nil, err
	}
	peers := []api.BgpPeer{}
	if err := json.Unmarshal(res, &peers); err != nil {
		return nil, errors.Wrap(err, "malformed bgp_list result")
	}
	for i := range peers {
		peers[i].Enabled = peers[i].ProtocolState != "down"
	}
	return peers, nil
}

// SetBgpPeerState enables or disables one routing peer.
func (c *Controller) SetBgpPeerState(ctx context.Context, id, peer string, enabled bool) error {
	if peer == "" {
		return errors.New("empty peer name")
	}
	command := "bgp_disable"
	if enabled {
		command = "bgp_enable"
	}
	_, err := c.call(ctx, id, command, peer)
	return err
}
