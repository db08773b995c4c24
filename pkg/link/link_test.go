package link

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emuctl/api"
	"emuctl/pkg/node"
	"emuctl/pkg/resolve"
)

type fakeInventory struct {
	seg     api.NetworkSegment
	members []api.Node
	calls   int
}

func (f *fakeInventory) Segment(_ context.Context, prefix string) (api.NetworkSegment, error) {
	f.calls++
	return resolve.One("network", prefix, []api.NetworkSegment{f.seg}, func(s api.NetworkSegment) string { return s.ID })
}

func (f *fakeInventory) Members(context.Context, api.NetworkSegment) ([]api.Node, error) {
	f.calls++
	return f.members, nil
}

type execCall struct {
	id   string
	argv []string
}

type fakeExecutor struct {
	calls  []execCall
	output map[string]string
	fail   map[string]error
}

func (f *fakeExecutor) Exec(_ context.Context, id string, argv []string) (string, error) {
	f.calls = append(f.calls, execCall{id: id, argv: argv})
	if err := f.fail[id]; err != nil {
		return "", &node.RelayError{Node: id, Op: "stream", Err: err}
	}
	return f.output[id], nil
}

func newSegment(members ...string) *fakeInventory {
	inv := &fakeInventory{
		seg: api.NetworkSegment{
			Network: api.Network{ID: "net111"},
			Meta:    api.NetworkMeta{EmulatorInfo: api.NetworkInfo{Name: "net0"}},
		},
	}
	for _, id := range members {
		inv.members = append(inv.members, api.Node{Container: api.Container{ID: id}})
	}
	return inv
}

func TestGetProfile(t *testing.T) {
	inv := newSegment("node1", "node2")
	exec := &fakeExecutor{output: map[string]string{
		"node1": "qdisc netem 803a: dev net0 root refcnt 5 limit 100 delay 100.0ms loss 5% rate 1Tbit\n",
	}}
	lm := NewLinkManager(inv, exec)

	p, err := lm.GetProfile(context.Background(), "net1")
	require.NoError(t, err)
	require.NotNil(t, p.Rate)
	assert.Equal(t, uint64(1000000000000), *p.Rate)
	assert.Equal(t, 100.0, *p.LatencyMs)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "node1", exec.calls[0].id)
	assert.Equal(t, []string{"tc", "qdisc", "show", "dev", "net0"}, exec.calls[0].argv)
}

func TestGetProfile_NoMembers(t *testing.T) {
	lm := NewLinkManager(newSegment(), &fakeExecutor{})
	_, err := lm.GetProfile(context.Background(), "net1")
	assert.ErrorContains(t, err, "no attached nodes")
}

func TestGetProfile_Unresolved(t *testing.T) {
	exec := &fakeExecutor{}
	lm := NewLinkManager(newSegment("node1"), exec)

	_, err := lm.GetProfile(context.Background(), "zzz")
	var rerr *resolve.Error
	assert.True(t, errors.As(err, &rerr))
	assert.Empty(t, exec.calls)
}

func TestSetProfile_NoChange(t *testing.T) {
	inv := newSegment("node1", "node2")
	exec := &fakeExecutor{}
	lm := NewLinkManager(inv, exec)

	results, changed, err := lm.SetProfile(context.Background(), "net1", api.ImpairmentProfile{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, results)
	assert.Empty(t, exec.calls)
	assert.Zero(t, inv.calls)
}

func TestSetProfile_AllMembersInOrder(t *testing.T) {
	exec := &fakeExecutor{output: map[string]string{"node2": "RTNETLINK answers: Operation not permitted\n"}}
	lm := NewLinkManager(newSegment("node1", "node2", "node3"), exec)

	loss := uint32(5)
	results, changed, err := lm.SetProfile(context.Background(), "net1", api.ImpairmentProfile{Loss: &loss})
	require.NoError(t, err)
	assert.True(t, changed)

	want := []string{"tc", "qdisc", "replace", "dev", "net0", "root", "netem", "loss", "5%"}
	require.Len(t, exec.calls, 3)
	for i, id := range []string{"node1", "node2", "node3"} {
		assert.Equal(t, id, exec.calls[i].id)
		assert.Equal(t, want, exec.calls[i].argv)
		assert.Equal(t, id, results[i].Node)
	}
	assert.Equal(t, "RTNETLINK answers: Operation not permitted\n", results[1].Output)
	assert.Empty(t, results[1].Error)
}

func TestSetProfile_PartialFailure(t *testing.T) {
	exec := &fakeExecutor{
		fail: map[string]error{"node1": errors.New("connection reset")},
	}
	lm := NewLinkManager(newSegment("node1", "node2"), exec)

	limit := uint32(10)
	results, changed, err := lm.SetProfile(context.Background(), "net1", api.ImpairmentProfile{QueueLimit: &limit})
	require.NoError(t, err)
	assert.True(t, changed)

	require.Len(t, exec.calls, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "node1", results[0].Node)
	assert.Contains(t, results[0].Error, "connection reset")
	assert.Equal(t, "node2", results[1].Node)
	assert.Empty(t, results[1].Error)
}
