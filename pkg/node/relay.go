package node

import (
	"context"
	"fmt"
	"io"

	"emuctl/api"
)

// RelayError reports a failure of the exec transport while running a command
// inside a node, as opposed to the command itself failing.
type RelayError struct {
	Node string
	Op   string // create, attach, stream
	Err  error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("exec %s on %s: %v", e.Op, shortID(e.Node), e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Executor runs a command inside a node and returns its combined output.
type Executor interface {
	Exec(ctx context.Context, id string, argv []string) (string, error)
}

// Streamer runs a long-lived command inside a node, copying its output as it
// arrives.
type Streamer interface {
	Executor
	ExecStream(ctx context.Context, id string, argv []string, stdout, stderr io.Writer) error
}

// Engine lists the container engine inventory.
type Engine interface {
	Containers(ctx context.Context) ([]api.Container, error)
	Networks(ctx context.Context) ([]api.Network, error)
}
