package node

import (
	"context"
	"errors"

	"emuctl/api"
)

type fakeEngine struct {
	containers []api.Container
	networks   []api.Network
	err        error
}

func (f *fakeEngine) Containers(context.Context) ([]api.Container, error) {
	return f.containers, f.err
}

func (f *fakeEngine) Networks(context.Context) ([]api.Network, error) {
	return f.networks, f.err
}

type fakeSessions map[string]bool

func (f fakeSessions) HasSession(id string) bool { return f[id] }

var errEngineDown = errors.New("engine down")
