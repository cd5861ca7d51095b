// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/pipeline"
)

const (
	displayWidth  = 128
	displayHeight = 64
	headerHeight  = 16 // text row above the sparkline
)

// RunDisplay draws sensor 0 on an SSD1306 OLED until ctx is cancelled.
func RunDisplay(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.DisplayI2CBus, err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	monitoring.Logf("display: initialized on bus %q", cfg.DisplayI2CBus)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		monitoring.Logf("display: error showing splash: %v", err)
	}

	yMin, yMax := chartRange(p.Deriver())
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	monitoring.Logf("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("display: stopped")
			return nil
		case <-ticker.C:
		}

		values, err := p.Snapshot(0)
		if err != nil {
			return err
		}
		sample, seq, _ := p.Latest(0)
		header := "S0 waiting..."
		if seq > 0 {
			header = fmt.Sprintf("S0 %.1f %s", sample.Value, strings.ToUpper(string(sample.Band())))
		}

		img := renderSparkline(values, yMin, yMax, header)
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			monitoring.Logf("display: error updating display: %v", err)
		}
	}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(15, 26)
	drawer.DrawBytes([]byte("Motion Monitor"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("UDP data"))

	return img
}

// sparklineRow maps v onto a pixel row of the chart area. Values outside
// [yMin, yMax] are pinned to the edges.
func sparklineRow(v, yMin, yMax float64) int {
	top, bottom := headerHeight, displayHeight-1
	if yMax <= yMin || math.IsNaN(v) {
		return bottom
	}
	frac := (v - yMin) / (yMax - yMin)
	frac = math.Max(0, math.Min(1, frac))
	return bottom - int(math.Round(frac*float64(bottom-top)))
}

// renderSparkline draws header on the top row and the newest values as a
// connected line below it, newest at the right edge.
func renderSparkline(values []float64, yMin, yMax float64, header string) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(0, 12)
	drawer.DrawBytes([]byte(header))

	if len(values) > displayWidth {
		values = values[len(values)-displayWidth:]
	}
	x0 := displayWidth - len(values)

	prev := -1
	for i, v := range values {
		x := x0 + i
		row := sparklineRow(v, yMin, yMax)
		if prev < 0 {
			prev = row
		}
		lo, hi := prev, row
		if lo > hi {
			lo, hi = hi, lo
		}
		for y := lo; y <= hi; y++ {
			img.SetBit(x, y, image1bit.On)
		}
		prev = row
	}
	return img
}
