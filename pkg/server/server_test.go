package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emuctl/api"
	"emuctl/pkg/console"
	"emuctl/pkg/controller"
	"emuctl/pkg/link"
	"emuctl/pkg/meta"
	"emuctl/pkg/node"
	"emuctl/pkg/sniff"
)

const (
	netA  = "aaaa1111"
	netB  = "bbbb2222"
	node1 = "1111aaaa"
	node2 = "1122bbbb"
	node3 = "2222cccc"
)

func nodeLabels(name string) map[string]string {
	return map[string]string{meta.DefaultPrefix + "nodename": name}
}

type fakeEngine struct{}

func (fakeEngine) Containers(context.Context) ([]api.Container, error) {
	return []api.Container{
		{ID: node1, Labels: nodeLabels("r1"), NetworkIDs: []string{netA}},
		{ID: node2, Labels: nodeLabels("r2"), NetworkIDs: []string{netA, netB}},
		{ID: node3, Labels: map[string]string{"foreign": "yes"}, NetworkIDs: []string{netA}},
	}, nil
}

func (fakeEngine) Networks(context.Context) ([]api.Network, error) {
	return []api.Network{
		{ID: netA, Name: "net-a", Labels: map[string]string{meta.DefaultPrefix + "name": "net0"}},
		{ID: netB, Name: "net-b", Labels: map[string]string{meta.DefaultPrefix + "name": "net1"}},
		{ID: "cccc3333", Name: "bridge"},
	}, nil
}

type call struct {
	node string
	argv []string
}

// fakeExec answers every command through reply and records it.
type fakeExec struct {
	mu    sync.Mutex
	calls []call
	reply func(id string, argv []string) (string, error)
}

func (f *fakeExec) Exec(_ context.Context, id string, argv []string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{node: id, argv: argv})
	f.mu.Unlock()
	if f.reply == nil {
		return "", nil
	}
	return f.reply(id, argv)
}

func (f *fakeExec) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeBackend struct {
	mu     sync.Mutex
	ids    []string
	filter string
}

func (b *fakeBackend) SetListener(sniff.Listener) {}

func (b *fakeBackend) Sniff(_ context.Context, ids []string, filter string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids, b.filter = ids, filter
	return nil
}

type fixture struct {
	srv  *httptest.Server
	exec *fakeExec
	hub  *sniff.Hub
	back *fakeBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	exec := &fakeExec{}
	inv := node.NewInventory(fakeEngine{}, meta.NewExtractor(""), nil)
	back := &fakeBackend{}
	hub := sniff.NewHub(back, inv)
	ctl := controller.NewController(exec, "")

	s := NewServer(Options{
		Inventory: inv,
		Links:     link.NewLinkManager(inv, exec),
		NetState:  ctl,
		Peers:     ctl,
		Capture:   hub,
		Consoles:  console.NewSessionManager(nil),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, exec: exec, hub: hub, back: back}
}

type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func agentReply(payload string) string {
	return "starting\n_BEGIN_RESULT_\n" + payload + "\n_END_RESULT_\n"
}

func TestListContainers(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodGet, "/container", "")
	assert.Equal(t, http.StatusOK, status)
	require.True(t, resp.OK)

	var nodes []api.Node
	require.NoError(t, json.Unmarshal(resp.Result, &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "r1", nodes[0].Meta.EmulatorInfo.Name)
	assert.Equal(t, "r2", nodes[1].Meta.EmulatorInfo.Name)
}

func TestListNetworks(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodGet, "/network", "")
	require.True(t, resp.OK)

	var segs []api.NetworkSegment
	require.NoError(t, json.Unmarshal(resp.Result, &segs))
	require.Len(t, segs, 2)
	assert.Equal(t, "net0", segs[0].Meta.EmulatorInfo.Name)
}

func TestGetContainer(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		prefix string
		ok     bool
		result string
	}{
		{"1111", true, ""},
		{"11", false, `"multiple match (2) for container ID 11"`},
		{"9", false, `"no match for container ID 9"`},
		// foreign containers are never resolved
		{"2222", false, `"no match for container ID 2222"`},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			status, resp := f.do(t, http.MethodGet, "/container/"+tt.prefix, "")
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.ok, resp.OK)
			if tt.ok {
				var n api.Node
				require.NoError(t, json.Unmarshal(resp.Result, &n))
				assert.Equal(t, node1, n.ID)
				assert.False(t, n.Meta.HasSession)
			} else {
				assert.Equal(t, tt.result, string(resp.Result))
			}
		})
	}
}

func TestSetImpairment_NoChange(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodPost, "/network/zzzz/tc", `{"bw":"-1","latency":"-1","loss":"-1","queue":"-1"}`)
	assert.True(t, resp.OK)
	assert.Equal(t, `"no change"`, string(resp.Result))
	assert.Empty(t, f.exec.recorded())
}

func TestSetImpairment_Validation(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"bw":"-1","latency":"-1","loss":"101","queue":"-1"}`,
		`{"bw":"fast"}`,
		`{"latency":"1e3"}`,
		`{"queue":-5}`,
		`{"bw":`,
	} {
		status, resp := f.do(t, http.MethodPost, "/network/aaaa/tc", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.False(t, resp.OK, body)
	}
	assert.Empty(t, f.exec.recorded())
}

func TestSetImpairment_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.exec.reply = func(id string, argv []string) (string, error) {
		if id == node1 {
			return "", &node.RelayError{Node: id, Op: "attach", Err: assert.AnError}
		}
		return "", nil
	}

	_, resp := f.do(t, http.MethodPost, "/network/aaaa/tc", `{"bw":"5000000","latency":100,"loss":"-1","queue":"-1"}`)
	require.True(t, resp.OK)

	var results []api.NodeResult
	require.NoError(t, json.Unmarshal(resp.Result, &results))
	require.Len(t, results, 2)
	assert.Equal(t, node1, results[0].Node)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, node2, results[1].Node)
	assert.Empty(t, results[1].Error)

	want := []string{"tc", "qdisc", "replace", "dev", "net0", "root", "netem", "rate", "5000000bit", "latency", "100ms"}
	calls := f.exec.recorded()
	require.Len(t, calls, 2)
	for _, c := range calls {
		if diff := cmp.Diff(want, c.argv); diff != "" {
			t.Errorf("argv mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestGetImpairment(t *testing.T) {
	f := newFixture(t)
	f.exec.reply = func(string, []string) (string, error) {
		return "qdisc netem 803a: dev net1 root refcnt 5 limit 100 delay 250us rate 2Tbit\n", nil
	}

	_, resp := f.do(t, http.MethodGet, "/network/bbbb/tc", "")
	require.True(t, resp.OK)
	assert.JSONEq(t, `{"queue":"100","latency":0.25,"bw":"2000000000000"}`, string(resp.Result))

	calls := f.exec.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, node2, calls[0].node)
	assert.Equal(t, link.ShowArgs("net1"), calls[0].argv)
}

func TestNetState(t *testing.T) {
	f := newFixture(t)
	f.exec.reply = func(_ string, argv []string) (string, error) {
		if argv[1] == "net_status" {
			return agentReply(`{"ok":true,"result":"down"}`), nil
		}
		return agentReply(`{"ok":true,"result":null}`), nil
	}

	_, resp := f.do(t, http.MethodGet, "/container/1111/net", "")
	require.True(t, resp.OK)
	assert.Equal(t, "false", string(resp.Result))

	_, resp = f.do(t, http.MethodPost, "/container/1122/net", `{"status":true}`)
	assert.True(t, resp.OK)

	status, resp := f.do(t, http.MethodPost, "/container/1122/net", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.OK)

	calls := f.exec.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, call{node: node2, argv: []string{controller.DefaultAgentPath, "net_up"}}, calls[1])
}

func TestBgp(t *testing.T) {
	f := newFixture(t)
	f.exec.reply = func(_ string, argv []string) (string, error) {
		switch argv[1] {
		case "bgp_list":
			return agentReply(`{"ok":true,"result":[{"name":"u_as2","protocolState":"up","bgpState":"Established"}]}`), nil
		default:
			return agentReply(`{"ok":false,"result":"no such protocol"}`), nil
		}
	}

	_, resp := f.do(t, http.MethodGet, "/container/1111/bgp", "")
	require.True(t, resp.OK)
	assert.JSONEq(t, `[{"name":"u_as2","protocolState":"up","bgpState":"Established","enabled":true}]`, string(resp.Result))

	status, resp := f.do(t, http.MethodPost, "/container/1111/bgp/u_as9", `{"status":false}`)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, resp.OK)
	assert.Contains(t, string(resp.Result), "no such protocol")
}

func TestCapture(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodGet, "/sniff", "")
	assert.JSONEq(t, `{"currentFilter":""}`, string(resp.Result))

	_, resp = f.do(t, http.MethodPost, "/sniff", `{"filter":"icmp"}`)
	require.True(t, resp.OK)
	assert.JSONEq(t, `{"currentFilter":"icmp"}`, string(resp.Result))
	assert.Equal(t, []string{node1, node2}, f.back.ids)

	// filter is optional
	_, resp = f.do(t, http.MethodPost, "/sniff", "")
	require.True(t, resp.OK)
	assert.Equal(t, "", f.hub.Filter())
}

func TestCaptureSubscription(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/sniff/ws", "/sniff"} {
		t.Run(path, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			require.NoError(t, err)

			assert.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, 1, f.hub.Broadcast(node1, []byte("IP 10.0.0.1 > 10.0.0.2")))

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var frame sniff.Frame
			require.NoError(t, conn.ReadJSON(&frame))
			assert.Equal(t, sniff.Frame{Source: node1, Data: "IP 10.0.0.1 > 10.0.0.2"}, frame)

			conn.Close()
			assert.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestConsoleUnresolved(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/console/9"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "error creating session: no match for container ID 9\r\n", string(msg))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/sniff", "")

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
