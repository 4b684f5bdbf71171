// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"encoding/binary"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// Encoder serializes one frame per call into a buffer it owns.
//
// It is single-producer: the buffer and the sequence counter belong to the
// goroutine calling Encode, and the returned slice is only valid until the
// next call.
type Encoder struct {
	n   int
	seq uint16
	buf []byte
}

// NewEncoder creates an encoder for n sensors, starting at seq 0.
func NewEncoder(n int) (*Encoder, error) {
	if err := checkSensors(n); err != nil {
		return nil, err
	}
	return &Encoder{n: n, buf: make([]byte, Len(n))}, nil
}

// Sensors returns N.
func (e *Encoder) Sensors() int { return e.n }

// Seq returns the sequence number the next frame will carry.
func (e *Encoder) Seq() uint16 { return e.seq }

// Encode writes header, seq, the n triples, checksum and footer, then
// advances the sequence counter (wrapping silently past 65535).
func (e *Encoder) Encode(raws []imu.Raw) ([]byte, error) {
	if len(raws) != e.n {
		return nil, ErrSensorCount
	}

	b := e.buf
	b[0] = Header
	binary.BigEndian.PutUint16(b[headerLen:], e.seq)
	e.seq++

	off := headerLen + seqLen
	for _, r := range raws {
		binary.BigEndian.PutUint16(b[off:], uint16(r.Ax))
		binary.BigEndian.PutUint16(b[off+2:], uint16(r.Ay))
		binary.BigEndian.PutUint16(b[off+4:], uint16(r.Az))
		off += tripleLen
	}

	binary.BigEndian.PutUint16(b[off:], Checksum(b[:off]))
	b[off+checksumLen] = Footer
	return b, nil
}
