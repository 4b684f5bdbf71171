// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import "github.com/relabs-tech/vibration_bench/internal/imu"

// Ring is a fixed-capacity FIFO of samples. When full, Push overwrites the
// oldest entry. Not safe for concurrent use; Store serializes access.
type Ring struct {
	buf  []imu.Sample
	next int // slot the next Push writes
	n    int
}

// NewRing allocates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]imu.Sample, capacity)}
}

// Push appends s and reports whether the oldest sample was evicted.
func (r *Ring) Push(s imu.Sample) bool {
	evicted := r.n == len(r.buf)
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if !evicted {
		r.n++
	}
	return evicted
}

func (r *Ring) Len() int   { return r.n }
func (r *Ring) Cap() int   { return len(r.buf) }
func (r *Ring) Full() bool { return r.n == len(r.buf) }

// Snapshot returns a copy ordered oldest to newest.
func (r *Ring) Snapshot() []imu.Sample {
	out := make([]imu.Sample, r.n)
	start := (r.next - r.n + len(r.buf)) % len(r.buf)
	k := copy(out, r.buf[start:min(start+r.n, len(r.buf))])
	copy(out[k:], r.buf[:r.n-k])
	return out
}

// Reset empties the ring without releasing its storage.
func (r *Ring) Reset() {
	r.next = 0
	r.n = 0
}
