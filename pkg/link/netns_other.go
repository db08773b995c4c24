//go:build !linux

package link

import (
	"context"
	"errors"
)

type PidResolver interface {
	Pid(ctx context.Context, id string) (int, error)
}

var errNetnsUnsupported = errors.New("netlink link backend is only available on linux")

type NetnsLinkState struct{}

func NewNetnsLinkState(PidResolver) *NetnsLinkState {
	return &NetnsLinkState{}
}

func (s *NetnsLinkState) IsNetworkConnected(context.Context, string) (bool, error) {
	return false, errNetnsUnsupported
}

func (s *NetnsLinkState) SetNetworkConnected(context.Context, string, bool) error {
	return errNetnsUnsupported
}
