// Package console bridges websocket clients to interactive shells inside
// emulator nodes.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Conn is the client side of a session. *websocket.Conn implements it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Opener starts an interactive command with a TTY inside a node.
type Opener interface {
	Interactive(ctx context.Context, id string, argv []string) (io.ReadWriteCloser, error)
}

var DefaultShell = []string{"bash"}

// SessionManager tracks the open console sessions per node.
type SessionManager struct {
	opener Opener
	shell  []string

	mu       sync.Mutex
	sessions map[string]map[string]bool // node id -> session ids
}

func NewSessionManager(opener Opener) *SessionManager {
	return &SessionManager{
		opener:   opener,
		shell:    DefaultShell,
		sessions: make(map[string]map[string]bool),
	}
}

// HasSession reports whether node id has at least one open console.
func (m *SessionManager) HasSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[id]) > 0
}

func (m *SessionManager) add(id, sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == nil {
		m.sessions[id] = make(map[string]bool)
	}
	m.sessions[id][sid] = true
}

func (m *SessionManager) remove(id, sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions[id], sid)
	if len(m.sessions[id]) == 0 {
		delete(m.sessions, id)
	}
}

// Handle runs a shell inside node id and pumps bytes between it and conn
// until either side ends. The shell keeps running if ctx is canceled; it
// exits when its terminal is closed.
func (m *SessionManager) Handle(ctx context.Context, conn Conn, id string) error {
	defer conn.Close()

	tty, err := m.opener.Interactive(ctx, id, m.shell)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("error creating session: %v\r\n", err)))
		return err
	}
	defer tty.Close()

	sid := uuid.NewString()
	m.add(id, sid)
	defer m.remove(id, sid)

	logger := log.WithFields(log.Fields{"node": id, "session": sid})
	logger.Info("console session opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// closing conn unblocks the read loop below
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := tty.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					logger.WithError(err).Debug("console output ended")
				}
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if _, err := tty.Write(msg); err != nil {
			logger.WithError(err).Debug("console input failed")
			break
		}
	}

	tty.Close()
	<-done
	logger.Info("console session closed")
	return nil
}
