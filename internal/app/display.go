// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/vibration_bench/internal/sensors"
)

const (
	panelW = 128
	panelH = 64
)

// Panel is a 128x64 SSD1306 OLED showing the live channel.
type Panel struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// OpenPanel opens the display on I2C bus busName ("" = first bus).
func OpenPanel(busName string) (*Panel, error) {
	if err := sensors.InitHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	p := &Panel{bus: bus, dev: dev}
	if err := p.draw(renderSplash()); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Panel) draw(img *image1bit.VerticalLSB) error {
	return p.dev.Draw(p.dev.Bounds(), img, image.Point{})
}

// Show draws s.
func (p *Panel) Show(s Snapshot, recording bool) error {
	return p.draw(renderSnapshot(s, recording))
}

// Close blanks the display and releases the bus.
func (p *Panel) Close() error {
	p.dev.Halt()
	return p.bus.Close()
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, panelW, panelH))
	return img, &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}

func drawLine(d *font.Drawer, x, y int, s string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func renderSplash() *image1bit.VerticalLSB {
	img, d := newCanvas()
	drawLine(d, 10, 26, "Vibration bench")
	drawLine(d, 25, 43, "waiting...")
	return img
}

func renderSnapshot(s Snapshot, recording bool) *image1bit.VerticalLSB {
	img, d := newCanvas()
	title := fmt.Sprintf("CH%d", s.Sensor)
	if recording {
		title += " REC"
	}
	drawLine(d, 0, 13, title)
	drawLine(d, 0, 26, fmt.Sprintf("QD: %8.4f", s.QDAmp))
	drawLine(d, 0, 39, fmt.Sprintf("PK: %8.4f", s.MaxAmp))
	drawLine(d, 0, 52, fmt.Sprintf("F%d D%d G%d", s.Frames%100000, s.Desyncs%1000, s.Gaps%1000))
	return img
}
