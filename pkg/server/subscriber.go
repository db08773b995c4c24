package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const writeWait = 10 * time.Second

var errSubscriberClosed = errors.New("subscriber closed")

// subscriber is a capture subscription over a websocket.
type subscriber struct {
	id   string
	conn *websocket.Conn

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (s *subscriber) ID() string {
	return s.id
}

func (s *subscriber) Closed() bool {
	return s.closed.Load()
}

func (s *subscriber) Send(msg []byte) error {
	if s.Closed() {
		return errSubscriberClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.close()
		return err
	}
	return nil
}

// readLoop discards client messages and returns once the client is gone.
func (s *subscriber) readLoop() {
	defer s.close()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *subscriber) close() {
	if s.closed.CompareAndSwap(false, true) {
		s.conn.Close()
	}
}
