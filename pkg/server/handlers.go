package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"emuctl/pkg/link"
	"emuctl/pkg/util"
)

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return &util.ValidationError{Field: "body", Reason: err.Error()}
}

type statusRequest struct {
	Status *bool `json:"status"`
}

func (req statusRequest) value() (bool, error) {
	if req.Status == nil {
		return false, &util.ValidationError{Field: "status", Reason: "must be a boolean"}
	}
	return *req.Status, nil
}

type captureRequest struct {
	Filter string `json:"filter"`
}

type captureStatus struct {
	CurrentFilter string `json:"currentFilter"`
}

func (s *Server) listNetworks(w http.ResponseWriter, r *http.Request) {
	segments, err := s.inv.Segments(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, segments)
}

func (s *Server) listContainers(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.inv.Nodes(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, nodes)
}

func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) {
	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, n)
}

func (s *Server) getNetState(w http.ResponseWriter, r *http.Request) {
	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	connected, err := s.net.IsNetworkConnected(r.Context(), n.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, connected)
}

func (s *Server) setNetState(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	up, err := req.value()
	if err != nil {
		fail(w, r, err)
		return
	}

	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.net.SetNetworkConnected(r.Context(), n.ID, up); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, nil)
}

func (s *Server) listPeers(w http.ResponseWriter, r *http.Request) {
	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	peers, err := s.peers.ListBgpPeers(r.Context(), n.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, peers)
}

func (s *Server) setPeerState(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	enabled, err := req.value()
	if err != nil {
		fail(w, r, err)
		return
	}

	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.peers.SetBgpPeerState(r.Context(), n.ID, r.PathValue("peer"), enabled); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, nil)
}

func (s *Server) getImpairment(w http.ResponseWriter, r *http.Request) {
	p, err := s.links.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, p)
}

func (s *Server) setImpairment(w http.ResponseWriter, r *http.Request) {
	var req link.ShapeRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := req.Profile()
	if err != nil {
		fail(w, r, err)
		return
	}

	results, changed, err := s.links.SetProfile(r.Context(), r.PathValue("id"), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !changed {
		ok(w, r, "no change")
		return
	}
	ok(w, r, results)
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.capture.Start(r.Context(), req.Filter); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, captureStatus{CurrentFilter: s.capture.Filter()})
}

// getCapture reports the active filter, or subscribes when the request is a
// websocket handshake.
func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.subscribe(w, r)
		return
	}
	ok(w, r, captureStatus{CurrentFilter: s.capture.Filter()})
}

// subscribe attaches the websocket to the capture hub until the client goes
// away.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered
		log.WithError(err).Debug("capture subscription handshake failed")
		return
	}

	sub := newSubscriber(conn)
	s.capture.Attach(sub)
	sub.readLoop()
	s.capture.Detach(sub.ID())
}

func (s *Server) console(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("console handshake failed")
		return
	}

	n, err := s.inv.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("error creating session: "+err.Error()+"\r\n"))
		conn.Close()
		return
	}
	if err := s.consoles.Handle(r.Context(), conn, n.ID); err != nil {
		log.WithField("node", n.ID).WithError(err).Warn("console session failed")
	}
}
