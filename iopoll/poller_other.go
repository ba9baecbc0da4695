//go:build !linux && !darwin

package iopoll

import "errors"

// FastPoller on platforms without an epoll/kqueue-equivalent always fails
// to initialize, matching the teacher's own poller_windows.go pattern of
// one implementation per OS rather than a polling fallback.
type FastPoller struct{}

var errUnsupportedPlatform = errors.New("iopoll: no epoll/kqueue backend on this platform")

func (p *FastPoller) Init() error                              { return errUnsupportedPlatform }
func (p *FastPoller) Close() error                              { return nil }
func (p *FastPoller) RegisterFD(int, IOEvents, Callback) error  { return errUnsupportedPlatform }
func (p *FastPoller) UnregisterFD(int) error                    { return errUnsupportedPlatform }
func (p *FastPoller) ModifyFD(int, IOEvents) error              { return errUnsupportedPlatform }
func (p *FastPoller) Poll(int) (int, error)                     { return 0, errUnsupportedPlatform }
