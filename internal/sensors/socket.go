// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn a Source needs.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates bound UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

// ListenUDP binds a new UDP socket.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket is a scripted UDPSocket for tests. Reads consume queued
// packets in order; an empty queue behaves like an expired read deadline.
type MockUDPSocket struct {
	mu           sync.Mutex
	packets      []MockUDPPacket
	closed       bool
	reads        int
	readDeadline time.Time
	localAddr    *net.UDPAddr
}

// MockUDPPacket is one scripted read result. A nil Err with nil Data is
// delivered as an empty datagram; Timeout forces a deadline expiry.
type MockUDPPacket struct {
	Data    []byte
	Addr    *net.UDPAddr
	Err     error
	Timeout bool
}

// NewMockUDPSocket creates a mock bound to port.
func NewMockUDPSocket(port int, packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:   packets,
		localAddr: &net.UDPAddr{IP: net.IPv4zero, Port: port},
	}
}

// Push queues a datagram.
func (m *MockUDPSocket) Push(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{
		Data: []byte(data),
		Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
	})
}

// PushError queues a transport error.
func (m *MockUDPSocket) PushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{Err: err})
}

// PushTimeout queues an explicit deadline expiry.
func (m *MockUDPSocket) PushTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{Timeout: true})
}

// ReadFromUDP returns the next scripted packet.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if len(m.packets) == 0 {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]

	switch {
	case pkt.Timeout:
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	case pkt.Err != nil:
		return 0, nil, pkt.Err
	}
	return copy(b, pkt.Data), pkt.Addr, nil
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return net.ErrClosed
	}
	m.readDeadline = t
	return nil
}

// Close marks the socket closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return net.ErrClosed
	}
	m.closed = true
	return nil
}

// LocalAddr returns the bound address.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.localAddr }

// Reads returns how many reads were attempted.
func (m *MockUDPSocket) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Pending returns how many scripted packets remain.
func (m *MockUDPSocket) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadDeadline returns the last deadline set.
func (m *MockUDPSocket) ReadDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readDeadline
}

// MockUDPSocketFactory hands out mock sockets keyed by port.
type MockUDPSocketFactory struct {
	mu      sync.Mutex
	Sockets map[int]*MockUDPSocket
	Errors  map[int]error // ListenUDP fails for these ports
	Calls   []*net.UDPAddr
}

// NewMockUDPSocketFactory creates a factory with one silent socket per port.
func NewMockUDPSocketFactory(ports ...int) *MockUDPSocketFactory {
	f := &MockUDPSocketFactory{
		Sockets: make(map[int]*MockUDPSocket, len(ports)),
		Errors:  make(map[int]error),
	}
	for _, p := range ports {
		f.Sockets[p] = NewMockUDPSocket(p)
	}
	return f
}

// ListenUDP returns the socket registered for laddr's port.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, laddr)
	if err := f.Errors[laddr.Port]; err != nil {
		return nil, err
	}
	sock, ok := f.Sockets[laddr.Port]
	if !ok {
		return nil, errors.New("mock: no socket registered for port")
	}
	return sock, nil
}

// timeoutError implements net.Error for deadline simulation.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
