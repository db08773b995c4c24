package sniff

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"emuctl/api"
	"emuctl/pkg/metrics"
)

// Subscriber is one observer of captured frames.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
	// Closed reports whether the transport has terminated.
	Closed() bool
}

// Frame is the envelope sent to subscribers for every captured chunk.
type Frame struct {
	Source string `json:"source"`
	Data   string `json:"data"`
}

// Listener receives captured bytes from a node.
type Listener func(source string, data []byte)

// Backend runs the capture processes on the nodes.
type Backend interface {
	SetListener(l Listener)
	Sniff(ctx context.Context, nodeIDs []string, filter string) error
}

// NodeLister lists the emulator nodes a capture should run on.
type NodeLister interface {
	Nodes(ctx context.Context) ([]api.Node, error)
}

// Hub is the process-wide capture session: one filter, one set of target
// nodes and any number of subscribers. Subscribers may attach at any time,
// including before a capture was ever started.
type Hub struct {
	backend Backend
	nodes   NodeLister

	// serializes Start so the recorded filter is the one running
	startMu sync.Mutex

	mu     sync.Mutex
	filter string
	active bool
	subs   []Subscriber
}

func NewHub(backend Backend, nodes NodeLister) *Hub {
	h := &Hub{
		backend: backend,
		nodes:   nodes,
	}
	backend.SetListener(func(source string, data []byte) {
		h.Broadcast(source, data)
	})
	return h
}

// Start (re)starts the capture with filter on every emulator node currently
// present. The target set is fixed until the next Start. On failure the
// previous filter and capture stay in place.
func (h *Hub) Start(ctx context.Context, filter string) error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	nodes, err := h.nodes.Nodes(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}

	if err := h.backend.Sniff(ctx, ids, filter); err != nil {
		return err
	}

	h.mu.Lock()
	h.filter = filter
	h.active = true
	h.mu.Unlock()

	log.WithFields(log.Fields{"filter": filter, "nodes": len(ids)}).Info("capture started")
	return nil
}

// Filter returns the active filter expression.
func (h *Hub) Filter() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter
}

// Active reports whether a capture has been started.
func (h *Hub) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Attach adds a subscriber. It never starts a capture.
func (h *Hub) Attach(s Subscriber) {
	h.mu.Lock()
	h.subs = append(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	metrics.CaptureSubscribers.Set(float64(n))
	log.WithField("subscriber", s.ID()).Debug("capture subscriber attached")
}

// Detach removes the subscriber with the given id, if present.
func (h *Hub) Detach(id string) {
	h.remove(func(s Subscriber) bool { return s.ID() == id })
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast sends one frame to every live subscriber and prunes those whose
// transport has terminated. It returns the number of deliveries.
//
// Sending happens on a snapshot taken under the lock, so subscribers
// attached or detached meanwhile do not disturb the pass.
func (h *Hub) Broadcast(source string, data []byte) int {
	msg, err := json.Marshal(Frame{Source: source, Data: string(data)})
	if err != nil {
		log.WithError(err).Error("failed to encode capture frame")
		return 0
	}

	h.mu.Lock()
	snapshot := make([]Subscriber, len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	delivered := 0
	dead := make(map[string]bool)
	for _, s := range snapshot {
		if s.Closed() {
			dead[s.ID()] = true
			continue
		}
		if err := s.Send(msg); err != nil {
			log.WithField("subscriber", s.ID()).WithError(err).Debug("capture send failed")
		} else {
			delivered++
		}
		if s.Closed() {
			dead[s.ID()] = true
		}
	}

	if len(dead) > 0 {
		h.remove(func(s Subscriber) bool { return dead[s.ID()] })
	}
	metrics.CaptureFrames.Inc()
	return delivered
}

func (h *Hub) remove(match func(Subscriber) bool) {
	h.mu.Lock()
	kept := h.subs[:0]
	for _, s := range h.subs {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(h.subs); i++ {
		h.subs[i] = nil
	}
	h.subs = kept
	n := len(h.subs)
	h.mu.Unlock()

	metrics.CaptureSubscribers.Set(float64(n))
}
