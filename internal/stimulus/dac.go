// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stimulus

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/relabs-tech/vibration_bench/internal/sensors"
)

// LTC1660 address/control nibbles.
const (
	DACNoChange byte = 0x0
	DACA        byte = 0x1
	DACH        byte = 0x8
	DACSleep    byte = 0xE
	DACAll      byte = 0xF
)

// DACMaxCode is the full-scale 10-bit code.
const DACMaxCode = 1023

// DACCode converts a voltage to the 10-bit code: round(v/vref·1024),
// clamped to 0..1023.
func DACCode(v, vref float64) uint16 {
	if vref <= 0 {
		return 0
	}
	c := v / vref * 1024
	if c < 0 {
		return 0
	}
	if c > DACMaxCode {
		return DACMaxCode
	}
	return uint16(math.Floor(c + 0.5))
}

// DACVoltage is the output for code: code/1024·vref.
func DACVoltage(code uint16, vref float64) float64 {
	return float64(code&0x3FF) / 1024 * vref
}

// DACWord builds the 16-bit transfer [A3..A0 D9..D0 X X].
func DACWord(addr byte, code uint16) uint16 {
	return uint16(addr&0x0F)<<12 | (code&0x3FF)<<2
}

// DAC drives one LTC1660 output whose voltage sets the shaker amplitude:
// amplitude 0..1 maps to 0..vref. The frequency is set elsewhere.
type DAC struct {
	mu       sync.Mutex
	bus      sensors.Bus
	channel  byte
	vref     float64
	sleeping bool
}

// NewDAC drives output channel (1 = A .. 8 = H) through bus.
func NewDAC(bus sensors.Bus, channel int, vref float64) (*DAC, error) {
	if channel < int(DACA) || channel > int(DACH) {
		return nil, fmt.Errorf("DAC channel must be 1-8, got %d", channel)
	}
	if vref <= 0 {
		return nil, fmt.Errorf("DAC vref must be positive, got %v", vref)
	}
	return &DAC{bus: bus, channel: byte(channel), vref: vref}, nil
}

func (d *DAC) send(addr byte, code uint16) error {
	w := DACWord(addr, code)
	return d.bus.Tx([]byte{byte(w >> 8), byte(w)}, nil)
}

// Write sets the output to code.
func (d *DAC) Write(code uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code > DACMaxCode {
		code = DACMaxCode
	}
	if err := d.send(d.channel, code); err != nil {
		return fmt.Errorf("DAC write: %w", err)
	}
	d.sleeping = false
	return nil
}

// Apply implements sweep.Stimulus.
func (d *DAC) Apply(_ context.Context, _, amplitude float64) error {
	return d.Write(DACCode(amplitude*d.vref, d.vref))
}

// Sleep powers the DAC down.
func (d *DAC) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.send(DACSleep, 0); err != nil {
		return err
	}
	d.sleeping = true
	return nil
}

// Wake restores the outputs without changing them.
func (d *DAC) Wake() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sleeping {
		return nil
	}
	if err := d.send(DACNoChange, 0); err != nil {
		return err
	}
	d.sleeping = false
	return nil
}

// ClearAll sets every output to 0 V.
func (d *DAC) ClearAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(DACAll, 0)
}
