package console

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	out []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, msg, nil
	case <-c.done:
		return 0, nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.out...)
}

type fakeOpener struct {
	tty  io.ReadWriteCloser
	err  error
	argv []string
}

func (f *fakeOpener) Interactive(_ context.Context, _ string, argv []string) (io.ReadWriteCloser, error) {
	f.argv = argv
	return f.tty, f.err
}

func TestHandle_PumpsBothWays(t *testing.T) {
	shell, tty := net.Pipe()
	defer shell.Close()

	opener := &fakeOpener{tty: tty}
	m := NewSessionManager(opener)
	conn := newFakeConn()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Handle(context.Background(), conn, "n1") }()

	conn.in <- []byte("ls\n")
	buf := make([]byte, 16)
	n, err := shell.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ls\n", string(buf[:n]))
	assert.True(t, m.HasSession("n1"))
	assert.False(t, m.HasSession("n2"))

	_, err = shell.Write([]byte("file\n"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		out := conn.written()
		return len(out) == 1 && out[0] == "file\n"
	}, 2*time.Second, 10*time.Millisecond)

	close(conn.in)
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.False(t, m.HasSession("n1"))
	assert.Equal(t, DefaultShell, opener.argv)
}

func TestHandle_ShellExit(t *testing.T) {
	shell, tty := net.Pipe()
	m := NewSessionManager(&fakeOpener{tty: tty})
	conn := newFakeConn()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Handle(context.Background(), conn, "n1") }()

	assert.Eventually(t, func() bool { return m.HasSession("n1") }, 2*time.Second, 10*time.Millisecond)
	shell.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.False(t, m.HasSession("n1"))
}

func TestHandle_OpenFailure(t *testing.T) {
	m := NewSessionManager(&fakeOpener{err: errors.New("no such container")})
	conn := newFakeConn()

	err := m.Handle(context.Background(), conn, "n1")
	assert.Error(t, err)
	assert.Equal(t, []string{"error creating session: no such container\r\n"}, conn.written())
	assert.False(t, m.HasSession("n1"))
}
