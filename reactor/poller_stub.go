//go:build !linux
// +build !linux

// File: reactor/poller_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub poller for unsupported platforms.

package reactor

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-transfer/api"
)

var errUnsupported = errors.New("reactor: this platform is not supported")

type poller struct{}

func newPoller(int, *zap.Logger) (*poller, error) { return nil, errUnsupported }

func (p *poller) open(api.Family) (api.Socket, error) { return nil, errUnsupported }
func (p *poller) wait(time.Duration) error            { return errUnsupported }
func (p *poller) wake() error                         { return nil }
func (p *poller) close() error                        { return nil }
