// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// LSM6DS3 registers and values used by the bench.
const (
	lsmWhoAmI   = 0x0F
	lsmCtrl1XL  = 0x10
	lsmCtrl2G   = 0x11
	lsmCtrl3C   = 0x12
	lsmOutXLXL  = 0x28
	lsmID       = 0x6A
	lsmReadBit  = 0x80
	lsmCtrl3BDU = 0x40
	lsmCtrl3Inc = 0x04

	lsmODR1660 = 0x80
	lsmBW400   = 0x00
)

// lsmFullScale maps ±g to the FS_XL field of CTRL1_XL.
var lsmFullScale = map[float64]byte{
	2:  0x00,
	16: 0x04,
	4:  0x08,
	8:  0x0C,
}

// LSM6DS3 reads the accelerometer of one LSM6DS3 over SPI.
type LSM6DS3 struct {
	name string
	bus  Bus
	tx   [7]byte
	rx   [7]byte
}

// NewLSM6DS3 checks WHO_AM_I and configures the accelerometer for 1660 Hz
// at ±fullScaleG with block data update and address auto-increment. The
// gyroscope is configured identically on rate and left at its lowest range.
func NewLSM6DS3(name string, bus Bus, fullScaleG float64) (*LSM6DS3, error) {
	fs, ok := lsmFullScale[fullScaleG]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported full scale ±%vg", name, fullScaleG)
	}
	d := &LSM6DS3{name: name, bus: bus}

	id, err := d.readReg(lsmWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("%s: WHO_AM_I: %w", name, err)
	}
	if id != lsmID {
		return nil, fmt.Errorf("%s: WHO_AM_I mismatch: got 0x%02X, want 0x%02X", name, id, lsmID)
	}

	writes := []struct{ reg, val byte }{
		{lsmCtrl1XL, lsmODR1660 | fs | lsmBW400},
		{lsmCtrl2G, lsmODR1660},
		{lsmCtrl3C, lsmCtrl3BDU | lsmCtrl3Inc},
	}
	for _, w := range writes {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return nil, fmt.Errorf("%s: write 0x%02X: %w", name, w.reg, err)
		}
	}
	return d, nil
}

func (d *LSM6DS3) writeReg(reg, val byte) error {
	return d.bus.Tx([]byte{reg &^ lsmReadBit, val}, nil)
}

func (d *LSM6DS3) readReg(reg byte) (byte, error) {
	var r [2]byte
	if err := d.bus.Tx([]byte{reg | lsmReadBit, 0}, r[:]); err != nil {
		return 0, err
	}
	return r[1], nil
}

// ReadRaw burst-reads OUTX_L_XL..OUTZ_H_XL (little-endian).
func (d *LSM6DS3) ReadRaw() (imu.Raw, error) {
	d.tx = [7]byte{lsmOutXLXL | lsmReadBit}
	if err := d.bus.Tx(d.tx[:], d.rx[:]); err != nil {
		return imu.Raw{}, fmt.Errorf("%s: accel read: %w", d.name, err)
	}
	b := d.rx[1:]
	return imu.Raw{
		Ax: int16(binary.LittleEndian.Uint16(b[0:])),
		Ay: int16(binary.LittleEndian.Uint16(b[2:])),
		Az: int16(binary.LittleEndian.Uint16(b[4:])),
	}, nil
}

func (d *LSM6DS3) String() string { return d.name }
