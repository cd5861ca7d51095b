// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/relabs-tech/motion_monitor/internal/imu"
)

// ReadPCAP collects the UDP payloads in a pcap capture, grouped by destination
// port and kept in capture order. Only ports listed in ports are kept.
func ReadPCAP(r io.Reader, ports []int) (map[int][][]byte, error) {
	want := make(map[int]bool, len(ports))
	for _, p := range ports {
		want[p] = true
	}

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	out := make(map[int][][]byte, len(ports))
	for {
		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pcap packet: %w", err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		port := int(udp.DstPort)
		if !want[port] {
			continue
		}
		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)
		out[port] = append(out[port], payload)
	}
	return out, nil
}

// OpenPCAP builds one replay receiver per endpoint from a capture file.
func OpenPCAP(path string, eps []Endpoint) ([]Receiver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap %s: %w", path, err)
	}
	defer f.Close()

	ports := make([]int, len(eps))
	for i, ep := range eps {
		ports[i] = ep.Port
	}
	byPort, err := ReadPCAP(f, ports)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]Receiver, len(eps))
	for i, ep := range eps {
		out[i] = NewReplaySource(ep, byPort[ep.Port])
	}
	return out, nil
}

// ReplaySource yields captured payloads one per TryReceive, then NoData.
// Capture timing is not reproduced: playback runs at the tick rate.
type ReplaySource struct {
	mu       sync.Mutex
	ep       Endpoint
	payloads [][]byte
	next     int
	closed   bool
}

// NewReplaySource creates a replay receiver over payloads.
func NewReplaySource(ep Endpoint, payloads [][]byte) *ReplaySource {
	return &ReplaySource{ep: ep, payloads: payloads}
}

// Endpoint returns the replayed endpoint.
func (r *ReplaySource) Endpoint() Endpoint { return r.ep }

// TryReceive returns the next captured payload.
func (r *ReplaySource) TryReceive() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Result{Status: Failed, Err: &TransportError{Sensor: r.ep.Sensor, Port: r.ep.Port, Err: os.ErrClosed}}
	}
	if r.next >= len(r.payloads) {
		return Result{Status: NoData}
	}
	payload := r.payloads[r.next]
	r.next++
	return Result{
		Status: Data,
		Frame:  imu.Frame{Sensor: r.ep.Sensor, Payload: payload, Received: time.Now()},
	}
}

// Remaining returns how many payloads have not been replayed.
func (r *ReplaySource) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads) - r.next
}

// Close stops the replay.
func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
