// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame implements the fixed-length accelerometer stream frame:
//
//	[0]           HEADER (0x7F)
//	[1:3]         SEQ, uint16 big-endian, wraps 65535 -> 0
//	[3:3+6N]      N x (ax, ay, az) int16 big-endian
//	[3+6N:5+6N]   CHECKSUM, uint16 big-endian, additive sum of [0:3+6N]
//	[5+6N]        FOOTER (0xFE)
//
// N is fixed on both ends; nothing on the wire announces it.
package frame

import (
	"encoding/binary"
	"errors"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

const (
	Header byte = 0x7F
	Footer byte = 0xFE

	// MaxSensors bounds N so a frame always fits a small stack buffer on the device.
	MaxSensors = 8

	headerLen   = 1
	seqLen      = 2
	tripleLen   = 6
	checksumLen = 2
	footerLen   = 1
)

var (
	ErrShortFrame   = errors.New("short frame")
	ErrBadHeader    = errors.New("bad header")
	ErrBadFooter    = errors.New("bad footer")
	ErrBadChecksum  = errors.New("bad checksum")
	ErrSensorCount  = errors.New("sensor count mismatch")
	ErrSensorsRange = errors.New("sensor count out of range")
)

// Len returns the total frame length for n sensors: 3 + 6n + 3.
func Len(n int) int {
	return headerLen + seqLen + tripleLen*n + checksumLen + footerLen
}

// payloadEnd is the offset of the checksum field, i.e. the length covered by it.
func payloadEnd(n int) int {
	return headerLen + seqLen + tripleLen*n
}

// Checksum is the unsigned 16-bit additive sum of b (mod 65536).
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

func checkSensors(n int) error {
	if n < 1 || n > MaxSensors {
		return ErrSensorsRange
	}
	return nil
}

// Parse validates one complete frame for n sensors and returns its
// sequence number and raw triples in sensor-index order.
func Parse(b []byte, n int) (uint16, []imu.Raw, error) {
	if err := checkSensors(n); err != nil {
		return 0, nil, err
	}
	size := Len(n)
	if len(b) < size {
		return 0, nil, ErrShortFrame
	}
	b = b[:size]
	if b[0] != Header {
		return 0, nil, ErrBadHeader
	}
	end := payloadEnd(n)
	if Checksum(b[:end]) != binary.BigEndian.Uint16(b[end:end+checksumLen]) {
		return 0, nil, ErrBadChecksum
	}
	if b[size-1] != Footer {
		return 0, nil, ErrBadFooter
	}

	seq := binary.BigEndian.Uint16(b[headerLen:])
	raws := make([]imu.Raw, n)
	off := headerLen + seqLen
	for i := range raws {
		raws[i] = imu.Raw{
			Ax: int16(binary.BigEndian.Uint16(b[off:])),
			Ay: int16(binary.BigEndian.Uint16(b[off+2:])),
			Az: int16(binary.BigEndian.Uint16(b[off+4:])),
		}
		off += tripleLen
	}
	return seq, raws, nil
}
