//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller and reactor-owned stream sockets.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-transfer/api"
)

// poller is a level-triggered epoll instance with an eventfd for wakeups.
type poller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	log    *zap.Logger

	mu      sync.Mutex
	sockets map[int]*socket
}

func newPoller(maxEvents int, log *zap.Logger) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &poller{
		epfd:    epfd,
		wakefd:  wakefd,
		events:  make([]unix.EpollEvent, maxEvents),
		log:     log,
		sockets: make(map[int]*socket),
	}, nil
}

func (p *poller) open(family api.Family) (api.Socket, error) {
	var domain int
	switch family {
	case api.FamilyIPv4:
		domain = unix.AF_INET
	case api.FamilyIPv6:
		domain = unix.AF_INET6
	default:
		return nil, fmt.Errorf("open socket: unsupported family %s", family)
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open socket: %w", err)
	}
	s := &socket{p: p, fd: fd}
	p.mu.Lock()
	p.sockets[fd] = s
	p.mu.Unlock()
	return s, nil
}

func (p *poller) forget(fd int) {
	p.mu.Lock()
	delete(p.sockets, fd)
	p.mu.Unlock()
}

// wait blocks for at most timeout and dispatches readiness to socket handlers
// on the calling goroutine.
func (p *poller) wait(timeout time.Duration) error {
	n, err := unix.EpollWait(p.epfd, p.events, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.wakefd {
			var buf [8]byte
			_, _ = unix.Read(p.wakefd, buf[:])
			continue
		}
		p.mu.Lock()
		s := p.sockets[fd]
		p.mu.Unlock()
		if s != nil {
			s.dispatch(toMask(ev.Events))
		}
	}
	return nil
}

func (p *poller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *poller) close() error {
	p.mu.Lock()
	open := len(p.sockets)
	p.mu.Unlock()
	if open > 0 {
		p.log.Warn("poller closed with open sockets", zap.Int("sockets", open))
	}
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}

func toMask(events uint32) api.EventMask {
	var m api.EventMask
	if events&unix.EPOLLIN != 0 {
		m |= api.EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		m |= api.EventWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= api.EventError
	}
	return m
}

func toEpoll(m api.EventMask) uint32 {
	var events uint32
	if m&api.EventRead != 0 {
		events |= unix.EPOLLIN
	}
	if m&api.EventWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// socket is a non-blocking stream socket registered with the poller.
type socket struct {
	p  *poller
	fd int

	mu         sync.Mutex
	interest   api.EventMask
	registered bool
	handler    api.ReadinessFunc
	closed     bool
}

func (s *socket) Fd() api.SocketID { return api.SocketID(s.fd) }

func (s *socket) Watch(events api.EventMask, handler api.ReadinessFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrClosed
	}
	if err := s.update(s.interest | events); err != nil {
		return err
	}
	s.handler = handler
	return nil
}

func (s *socket) Unwatch(events api.EventMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrClosed
	}
	return s.update(s.interest &^ events)
}

// update moves the epoll registration to interest. Caller holds s.mu.
func (s *socket) update(interest api.EventMask) error {
	interest &= api.EventRead | api.EventWrite
	var err error
	switch {
	case interest == s.interest && s.registered == (interest != 0):
		return nil
	case interest == 0:
		err = unix.EpollCtl(s.p.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
		s.registered = false
	case !s.registered:
		ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(s.fd)}
		err = unix.EpollCtl(s.p.epfd, unix.EPOLL_CTL_ADD, s.fd, &ev)
		s.registered = err == nil
	default:
		ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(s.fd)}
		err = unix.EpollCtl(s.p.epfd, unix.EPOLL_CTL_MOD, s.fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl fd %d: %w", s.fd, err)
	}
	s.interest = interest
	return nil
}

func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return api.ErrClosed
	}
	s.closed = true
	s.handler = nil
	s.interest = 0
	s.registered = false
	s.mu.Unlock()
	// Closing the descriptor removes it from the epoll set.
	s.p.forget(s.fd)
	return unix.Close(s.fd)
}

func (s *socket) dispatch(events api.EventMask) {
	s.mu.Lock()
	h := s.handler
	mask := events & (s.interest | api.EventError)
	s.mu.Unlock()
	if h != nil && mask != 0 {
		h(mask)
	}
}
