// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/imu"
)

// MaxDatagramSize is the receive buffer size; longer datagrams are truncated.
const MaxDatagramSize = 1024

// Endpoint identifies one sensor's receive socket.
type Endpoint struct {
	Sensor  int           // index 0..N-1
	Address string        // bind host, e.g. "0.0.0.0"
	Port    int
	Timeout time.Duration // per-receive wait budget
}

func (e Endpoint) String() string {
	return fmt.Sprintf("sensor %d (port %d)", e.Sensor, e.Port)
}

// Endpoints builds one endpoint per port, indexed in list order.
func Endpoints(address string, ports []int, timeout time.Duration) []Endpoint {
	eps := make([]Endpoint, len(ports))
	for i, p := range ports {
		eps[i] = Endpoint{Sensor: i, Address: address, Port: p, Timeout: timeout}
	}
	return eps
}

// Status is the outcome of one receive attempt.
type Status int

const (
	// NoData means nothing arrived within the wait budget. It is not a failure.
	NoData Status = iota
	// Data means Result.Frame holds a datagram.
	Data
	// Failed means a transport-level error occurred; see Result.Err.
	Failed
)

func (s Status) String() string {
	switch s {
	case NoData:
		return "no data"
	case Data:
		return "data"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is returned by TryReceive.
type Result struct {
	Status Status
	Frame  imu.Frame
	Err    error
}

// TransportError is a socket-level failure on one sensor endpoint.
type TransportError struct {
	Sensor int
	Port   int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sensor %d (port %d): %v", e.Sensor, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Receiver is a Datagram Source: something that yields at most one frame per
// call without blocking longer than its endpoint timeout.
type Receiver interface {
	Endpoint() Endpoint
	TryReceive() Result
	Close() error
}

// Source receives datagrams on one bound UDP socket.
type Source struct {
	ep   Endpoint
	sock UDPSocket
	buf  []byte
}

// Listen binds ep's socket. A zero port binds an ephemeral port, which is then
// reported by Endpoint().
func Listen(factory UDPSocketFactory, ep Endpoint) (*Source, error) {
	ip := net.ParseIP(ep.Address)
	if ep.Address != "" && ip == nil {
		return nil, fmt.Errorf("%s: invalid bind address %q", ep, ep.Address)
	}

	sock, err := factory.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: ep.Port})
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", net.JoinHostPort(ep.Address, strconv.Itoa(ep.Port)), err)
	}
	if addr, ok := sock.LocalAddr().(*net.UDPAddr); ok && ep.Port == 0 {
		ep.Port = addr.Port
	}

	return &Source{
		ep:   ep,
		sock: sock,
		buf:  make([]byte, MaxDatagramSize),
	}, nil
}

// ListenAll binds every endpoint. If any bind fails the sockets already bound
// are closed and the error is returned.
func ListenAll(factory UDPSocketFactory, eps []Endpoint) ([]Receiver, error) {
	out := make([]Receiver, 0, len(eps))
	for _, ep := range eps {
		src, err := Listen(factory, ep)
		if err != nil {
			CloseAll(out)
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// CloseAll closes every receiver, returning the first error.
func CloseAll(rs []Receiver) error {
	var first error
	for _, r := range rs {
		if err := r.Close(); err != nil && first == nil && !errors.Is(err, net.ErrClosed) {
			first = err
		}
	}
	return first
}

// Endpoint returns the endpoint this source is bound to.
func (s *Source) Endpoint() Endpoint { return s.ep }

// TryReceive waits at most the endpoint timeout for one datagram.
// It must not be called concurrently with itself.
func (s *Source) TryReceive() Result {
	if err := s.sock.SetReadDeadline(time.Now().Add(s.ep.Timeout)); err != nil {
		return s.failed(err)
	}

	n, addr, err := s.sock.ReadFromUDP(s.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{Status: NoData}
		}
		return s.failed(err)
	}

	payload := make([]byte, n)
	copy(payload, s.buf[:n])
	return Result{
		Status: Data,
		Frame: imu.Frame{
			Sensor:   s.ep.Sensor,
			Payload:  payload,
			From:     addr,
			Received: time.Now(),
		},
	}
}

func (s *Source) failed(err error) Result {
	return Result{
		Status: Failed,
		Err:    &TransportError{Sensor: s.ep.Sensor, Port: s.ep.Port, Err: err},
	}
}

// Close releases the socket. A blocked TryReceive returns promptly.
func (s *Source) Close() error {
	return s.sock.Close()
}
