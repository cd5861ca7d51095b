// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/imu"
)

// Generator produces smooth synthetic readings with periodic bursts of
// motion, for exercising the monitor without hardware.
type Generator struct {
	Fields     int           // imu.FieldsMotion or imu.FieldsAccelGyro
	Phase      float64       // radians; offsets one simulated sensor from another
	BurstEvery time.Duration // period between bursts
	BurstLen   time.Duration
}

// NewGenerator creates a generator for the given wire layout.
func NewGenerator(fields int, phase float64) *Generator {
	return &Generator{
		Fields:     fields,
		Phase:      phase,
		BurstEvery: 5 * time.Second,
		BurstLen:   time.Second,
	}
}

// At returns the reading elapsed after the simulation started.
//
// The 6-field layout reports gyro rates in milli-degrees per second, so a
// quiet sensor sits around 20 °/s and a burst around 300 °/s once divided by
// 1000. The 3-field layout is unscaled: about 1 when quiet, about 10 in a burst.
func (g *Generator) At(elapsed time.Duration) imu.Vector {
	t := elapsed.Seconds() + g.Phase

	amp := 1.0
	if g.inBurst(elapsed) {
		amp = 10.0
	}
	x := amp * math.Sin(t)
	y := amp * math.Cos(t*0.7)
	z := amp * 0.5 * math.Sin(t*1.3)

	if g.Fields == imu.FieldsAccelGyro {
		const gyroScale = 20 * 1000 // 20 °/s in milli-degrees
		return imu.Vector{
			math.Round(200 * math.Sin(t*0.3)),
			math.Round(200 * math.Cos(t*0.3)),
			16384,
			math.Round(gyroScale * x * 1.5),
			math.Round(gyroScale * y * 1.5),
			math.Round(gyroScale * z * 1.5),
		}
	}
	return imu.Vector{x, y, z}
}

func (g *Generator) inBurst(elapsed time.Duration) bool {
	if g.BurstEvery <= 0 || g.BurstLen <= 0 {
		return false
	}
	offset := time.Duration(g.Phase * float64(time.Second))
	return (elapsed+offset)%g.BurstEvery < g.BurstLen
}

// Format renders a vector in the comma-separated wire format.
func Format(v imu.Vector) string {
	fields := make([]string, len(v))
	for i, f := range v {
		fields[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(fields, ",")
}
