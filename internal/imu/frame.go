// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"net"
	"time"
)

// Supported datagram layouts.
const (
	FieldsMotion    = 3 // vx,vy,vz
	FieldsAccelGyro = 6 // ax,ay,az,gx,gy,gz
)

// Frame is one raw datagram received from a sensor endpoint. It lives for a
// single tick.
type Frame struct {
	Sensor   int          // sensor index
	Payload  []byte       // owned copy of the datagram body
	From     *net.UDPAddr // nil for replayed frames
	Received time.Time
}

// Vector is a decoded fixed-arity reading.
type Vector []float64

// Motion returns the three components used for motion detection: the
// gyroscope axes of a 6-field reading, or the whole of a 3-field reading.
// It returns nil for any other arity.
func (v Vector) Motion() []float64 {
	switch len(v) {
	case FieldsMotion:
		return v
	case FieldsAccelGyro:
		return v[3:6]
	default:
		return nil
	}
}
