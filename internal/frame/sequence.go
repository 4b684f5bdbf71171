// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

// SequenceTracker detects lost frames from the wrapping 16-bit counter.
type SequenceTracker struct {
	last uint16
	seen bool
}

// Observe records seq and returns how many frames were skipped since the
// previous one: ((seq - last) mod 65536) - 1, or 0 for the first frame.
// The last value is always updated, so a gap is reported once.
func (t *SequenceTracker) Observe(seq uint16) int {
	if !t.seen {
		t.seen = true
		t.last = seq
		return 0
	}
	diff := seq - t.last // uint16 arithmetic is already mod 65536
	t.last = seq
	if diff == 0 {
		// repeated seq: saturate instead of reporting -1
		return 0
	}
	return int(diff) - 1
}

// Last returns the most recent sequence number and whether any was seen.
func (t *SequenceTracker) Last() (uint16, bool) {
	return t.last, t.seen
}
