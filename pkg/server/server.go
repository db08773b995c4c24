// Package server exposes the control plane over HTTP. Every endpoint answers
// with the envelope {"ok": bool, "result": ...}.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"emuctl/api"
	"emuctl/pkg/console"
	"emuctl/pkg/metrics"
	"emuctl/pkg/sniff"
	"emuctl/pkg/util"
)

// Inventory lists and resolves emulator nodes and networks.
type Inventory interface {
	Nodes(ctx context.Context) ([]api.Node, error)
	Node(ctx context.Context, prefix string) (api.Node, error)
	Segments(ctx context.Context) ([]api.NetworkSegment, error)
}

// Links reads and changes segment impairment.
type Links interface {
	GetProfile(ctx context.Context, netPrefix string) (api.ImpairmentProfile, error)
	SetProfile(ctx context.Context, netPrefix string, p api.ImpairmentProfile) ([]api.NodeResult, bool, error)
}

// NetState reads and toggles the connectivity of a node.
type NetState interface {
	IsNetworkConnected(ctx context.Context, id string) (bool, error)
	SetNetworkConnected(ctx context.Context, id string, up bool) error
}

// Peers relays routing-peer requests to a node.
type Peers interface {
	ListBgpPeers(ctx context.Context, id string) ([]api.BgpPeer, error)
	SetBgpPeerState(ctx context.Context, id, peer string, enabled bool) error
}

// Capture is the process-wide capture session.
type Capture interface {
	Start(ctx context.Context, filter string) error
	Filter() string
	Attach(s sniff.Subscriber)
	Detach(id string)
}

// Consoles runs interactive sessions.
type Consoles interface {
	Handle(ctx context.Context, conn console.Conn, id string) error
}

// Options carries the components behind the endpoints.
type Options struct {
	Inventory Inventory
	Links     Links
	NetState  NetState
	Peers     Peers
	Capture   Capture
	Consoles  Consoles
}

type Server struct {
	inv      Inventory
	links    Links
	net      NetState
	peers    Peers
	capture  Capture
	consoles Consoles

	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	return &Server{
		inv:      opts.Inventory,
		links:    opts.Links,
		net:      opts.NetState,
		peers:    opts.Peers,
		capture:  opts.Capture,
		consoles: opts.Consoles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the control plane has no notion of callers
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /network", s.listNetworks)
	mux.HandleFunc("GET /network/{id}/tc", s.getImpairment)
	mux.HandleFunc("POST /network/{id}/tc", s.setImpairment)

	mux.HandleFunc("GET /container", s.listContainers)
	mux.HandleFunc("GET /container/{id}", s.getContainer)
	mux.HandleFunc("GET /container/{id}/net", s.getNetState)
	mux.HandleFunc("POST /container/{id}/net", s.setNetState)
	mux.HandleFunc("GET /container/{id}/bgp", s.listPeers)
	mux.HandleFunc("POST /container/{id}/bgp/{peer}", s.setPeerState)

	mux.HandleFunc("POST /sniff", s.startCapture)
	mux.HandleFunc("GET /sniff", s.getCapture)
	mux.HandleFunc("GET /sniff/ws", s.subscribe)

	mux.HandleFunc("GET /console/{id}", s.console)

	mux.Handle("GET /metrics", metrics.Handler())

	return logRequests(mux)
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "error shutting down API server")
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

type envelope struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func ok(w http.ResponseWriter, r *http.Request, result interface{}) {
	metrics.HTTPRequests.WithLabelValues(r.Method, strconv.FormatBool(true)).Inc()
	writeJSON(w, http.StatusOK, envelope{OK: true, Result: result})
}

// fail renders err in the failure envelope. Malformed requests get 400;
// everything else is a reportable outcome and keeps 200.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.HTTPRequests.WithLabelValues(r.Method, strconv.FormatBool(false)).Inc()

	status := http.StatusOK
	var verr *util.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Info("request failed")
	writeJSON(w, status, envelope{OK: false, Result: err.Error()})
}
