// Package sniff captures packets on emulator nodes and fans the captured
// frames out to subscribers.
package sniff

import (
	"context"
	"io"
	"sync"

	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"

	"emuctl/pkg/node"
	"emuctl/pkg/util"
)

const (
	FormatText = "text"
	FormatPcap = "pcap"
)

// Sniffer runs tcpdump inside every target node and hands each chunk of its
// output to the listener. Starting a new capture stops the previous one.
type Sniffer struct {
	exec   node.Streamer
	iface  string
	format string

	// serializes Sniff and Stop
	startMu sync.Mutex

	mu       sync.Mutex
	listener Listener
	cancel   context.CancelFunc
	targets  []string
	wg       sync.WaitGroup
}

func NewSniffer(exec node.Streamer, iface, format string) *Sniffer {
	if iface == "" {
		iface = "any"
	}
	if format == "" {
		format = FormatText
	}
	return &Sniffer{
		exec:   exec,
		iface:  iface,
		format: format,
	}
}

func (s *Sniffer) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Args builds the tcpdump command line for filter. The filter is split with
// shell quoting rules and passed as separate arguments, never through a
// shell.
func (s *Sniffer) Args(filter string) ([]string, error) {
	expr, err := shlex.Split(filter)
	if err != nil {
		return nil, &util.ValidationError{Field: "filter", Value: filter, Reason: err.Error()}
	}
	argv := []string{"tcpdump", "-i", s.iface, "-n", "-l"}
	if s.format == FormatPcap {
		argv = append(argv, "-U", "-w", "-")
	}
	return append(argv, expr...), nil
}

// Sniff stops any running capture and starts a new one on nodeIDs. The
// capture processes outlive ctx; they run until the next Sniff or Stop.
func (s *Sniffer) Sniff(ctx context.Context, nodeIDs []string, filter string) error {
	argv, err := s.Args(filter)
	if err != nil {
		return err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	prev := s.targets
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()

	// closing the exec stream does not stop tcpdump inside the node
	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, prev...), nodeIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.exec.Exec(ctx, id, []string{"pkill", "tcpdump"}); err != nil {
			log.WithField("node", id).WithError(err).Debug("failed to stop previous capture")
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.targets = nodeIDs
	s.mu.Unlock()

	for _, id := range nodeIDs {
		s.wg.Add(1)
		go s.run(runCtx, id, argv)
	}
	return nil
}

// Stop ends the running capture streams.
func (s *Sniffer) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sniffer) emit(source string, data []byte) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l(source, data)
	}
}

func (s *Sniffer) run(ctx context.Context, id string, argv []string) {
	defer s.wg.Done()
	logger := log.WithField("node", id)

	var err error
	switch s.format {
	case FormatPcap:
		pr, pw := io.Pipe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := decodePcap(pr, id, s.emit); err != nil && ctx.Err() == nil {
				logger.WithError(err).Warn("failed to decode capture stream")
			}
			// unblock the writer if decoding stopped early
			pr.CloseWithError(io.ErrClosedPipe)
		}()
		err = s.exec.ExecStream(ctx, id, argv, pw, &chunkWriter{source: id, emit: s.emit})
		pw.CloseWithError(err)
		<-done
	default:
		w := &chunkWriter{source: id, emit: s.emit}
		err = s.exec.ExecStream(ctx, id, argv, w, w)
	}

	if err != nil && ctx.Err() == nil {
		logger.WithError(err).Warn("capture stream ended")
		return
	}
	logger.Debug("capture stream closed")
}

// chunkWriter forwards every write as one frame.
type chunkWriter struct {
	source string
	emit   Listener
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	w.emit(w.source, data)
	return len(p), nil
}
