// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/motion_monitor/internal/imu"
)

// ErrVectorArity is returned when a vector has no usable motion components.
var ErrVectorArity = errors.New("vector has no motion components")

// Mode selects what the deriver buffers.
type Mode int

const (
	// Continuous buffers the magnitude itself.
	Continuous Mode = iota
	// Binary buffers 1 when the magnitude exceeds the threshold, else 0.
	Binary
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Band is the display band a sample falls into.
type Band string

const (
	BandStill  Band = "still"  // drawn red
	BandMoving Band = "moving" // drawn green
)

// Sample is the value derived from one decoded vector.
type Sample struct {
	Magnitude float64 `json:"magnitude"`
	Value     float64 `json:"value"` // what gets buffered
	Above     bool    `json:"above"` // Magnitude > threshold
}

// Band classifies the sample for display.
func (s Sample) Band() Band {
	if s.Above {
		return BandMoving
	}
	return BandStill
}

// Deriver turns decoded vectors into samples. It holds no state between calls.
type Deriver struct {
	Mode      Mode
	Threshold float64
	Scale     float64 // each component is divided by Scale; 0 is treated as 1
}

// Derive computes the Euclidean norm of the vector's motion components and
// classifies it against the threshold (strict greater-than).
func (d Deriver) Derive(v imu.Vector) (Sample, error) {
	m := v.Motion()
	if m == nil {
		return Sample{}, fmt.Errorf("%w: %d fields", ErrVectorArity, len(v))
	}

	scale := d.Scale
	if scale == 0 {
		scale = 1
	}
	mag := Magnitude(m[0]/scale, m[1]/scale, m[2]/scale)

	s := Sample{Magnitude: mag, Above: mag > d.Threshold}
	switch d.Mode {
	case Binary:
		if s.Above {
			s.Value = 1
		}
	default:
		s.Value = mag
	}
	return s, nil
}

// Magnitude returns sqrt(x² + y² + z²).
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
