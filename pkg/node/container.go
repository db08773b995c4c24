package node

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"emuctl/api"
	"emuctl/pkg/metrics"
)

// ContainerManager talks to the container engine. It lists containers and
// networks and runs commands inside running containers; it never creates or
// removes them.
type ContainerManager struct {
	dClient *client.Client
}

// NewContainerManager connects to the engine at host, or to the one
// described by the DOCKER_* environment when host is empty.
func NewContainerManager(host string) (*ContainerManager, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	dClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating docker client")
	}
	return &ContainerManager{dClient: dClient}, nil
}

func (cm *ContainerManager) Close() error {
	return cm.dClient.Close()
}

// Containers lists running containers in engine order.
func (cm *ContainerManager) Containers(ctx context.Context) ([]api.Container, error) {
	list, err := cm.dClient.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "error listing containers")
	}

	out := make([]api.Container, 0, len(list))
	for _, c := range list {
		item := api.Container{
			ID:     c.ID,
			Names:  c.Names,
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
			Labels: c.Labels,
		}
		if c.NetworkSettings != nil {
			names := make([]string, 0, len(c.NetworkSettings.Networks))
			for name := range c.NetworkSettings.Networks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if ep := c.NetworkSettings.Networks[name]; ep != nil {
					item.NetworkIDs = append(item.NetworkIDs, ep.NetworkID)
				}
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Networks lists engine networks in engine order.
func (cm *ContainerManager) Networks(ctx context.Context) ([]api.Network, error) {
	list, err := cm.dClient.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "error listing networks")
	}

	out := make([]api.Network, 0, len(list))
	for _, n := range list {
		out = append(out, api.Network{
			ID:     n.ID,
			Name:   n.Name,
			Driver: n.Driver,
			Scope:  n.Scope,
			Labels: n.Labels,
		})
	}
	return out, nil
}

// Pid returns the host pid of the container's init process, used to reach
// its network namespace at /proc/<pid>/ns/net.
func (cm *ContainerManager) Pid(ctx context.Context, id string) (int, error) {
	res, err := cm.dClient.ContainerInspect(ctx, id)
	if err != nil {
		return 0, errors.Wrapf(err, "error inspecting container %s", id)
	}
	if res.State == nil || res.State.Pid == 0 {
		return 0, errors.Errorf("container %s is not running", id)
	}
	return res.State.Pid, nil
}

// Exec runs argv inside the container and returns stdout and stderr
// combined in arrival order. A non-zero exit status is not an error; the
// output is the result. Failures of the exec transport itself are returned
// as *RelayError and are never retried.
func (cm *ContainerManager) Exec(ctx context.Context, id string, argv []string) (string, error) {
	var buf bytes.Buffer
	err := cm.ExecStream(ctx, id, argv, &buf, &buf)
	return buf.String(), err
}

// ExecStream runs argv inside the container and copies its demultiplexed
// output to stdout and stderr until the command exits or ctx is done.
func (cm *ContainerManager) ExecStream(ctx context.Context, id string, argv []string, stdout, stderr io.Writer) error {
	logger := log.WithFields(log.Fields{"node": shortID(id), "cmd": argv})

	exec, err := cm.dClient.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		metrics.RelayCalls.WithLabelValues("error").Inc()
		return &RelayError{Node: id, Op: "create", Err: err}
	}

	resp, err := cm.dClient.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		metrics.RelayCalls.WithLabelValues("error").Inc()
		return &RelayError{Node: id, Op: "attach", Err: err}
	}
	defer resp.Close()

	// the hijacked connection does not watch ctx by itself
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			resp.Close()
		case <-done:
		}
	}()

	logger.Debug("exec started")
	if _, err = stdcopy.StdCopy(stdout, stderr, resp.Reader); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		metrics.RelayCalls.WithLabelValues("error").Inc()
		return &RelayError{Node: id, Op: "stream", Err: err}
	}
	logger.Debug("exec finished")
	metrics.RelayCalls.WithLabelValues("ok").Inc()
	return nil
}

// Interactive starts argv with a TTY attached and returns the raw stream.
func (cm *ContainerManager) Interactive(ctx context.Context, id string, argv []string) (io.ReadWriteCloser, error) {
	exec, err := cm.dClient.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          argv,
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, &RelayError{Node: id, Op: "create", Err: err}
	}

	resp, err := cm.dClient.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, &RelayError{Node: id, Op: "attach", Err: err}
	}
	return &hijacked{conn: resp.Conn, reader: resp.Reader}, nil
}

// hijacked reads through the buffered reader the engine client already
// filled and writes to the raw connection.
type hijacked struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (h *hijacked) Read(p []byte) (int, error)  { return h.reader.Read(p) }
func (h *hijacked) Write(p []byte) (int, error) { return h.conn.Write(p) }
func (h *hijacked) Close() error                { return h.conn.Close() }

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
