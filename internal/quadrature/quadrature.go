// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package quadrature estimates the amplitude and phase of a known-frequency
// component in a fixed-length window by correlating it with sine and cosine
// references (I/Q detection).
package quadrature

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// ErrWindowLength is returned when the input does not have exactly W samples.
var ErrWindowLength = errors.New("window length does not match reference")

// Reference holds S[n] = sin(2πf·n/fs) and C[n] = cos(2πf·n/fs) for
// n in [0, W). It is immutable after construction and safe to share.
type Reference struct {
	freq, rate float64
	sin, cos   []float64
}

// NewReference precomputes the tables for frequency f, sampling rate fs and
// window length w.
func NewReference(f, fs float64, w int) (*Reference, error) {
	if w < 1 {
		return nil, fmt.Errorf("window length must be positive, got %d", w)
	}
	if fs <= 0 || f <= 0 {
		return nil, fmt.Errorf("frequency %v and rate %v must be positive", f, fs)
	}
	r := &Reference{
		freq: f,
		rate: fs,
		sin:  make([]float64, w),
		cos:  make([]float64, w),
	}
	omega := 2 * math.Pi * f
	for n := 0; n < w; n++ {
		t := float64(n) / fs
		r.sin[n] = math.Sin(omega * t)
		r.cos[n] = math.Cos(omega * t)
	}
	return r, nil
}

// Len returns W.
func (r *Reference) Len() int { return len(r.sin) }

// Frequency returns f in Hz.
func (r *Reference) Frequency() float64 { return r.freq }

// Result is one detector evaluation.
type Result struct {
	SS        float64 `json:"ss"`
	CC        float64 `json:"cc"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"` // radians, (-π, π]
}

// Detect correlates x with the reference. Sums run left to right so a
// given window always produces the same result.
func Detect(ref *Reference, x []float64) (Result, error) {
	w := ref.Len()
	if len(x) != w {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrWindowLength, len(x), w)
	}
	var ss, cc float64
	for n, v := range x {
		ss += ref.sin[n] * v
		cc += ref.cos[n] * v
	}
	return Result{
		SS:        ss,
		CC:        cc,
		Amplitude: 2 * math.Sqrt(ss*ss+cc*cc) / float64(w),
		Phase:     math.Atan2(cc, ss),
	}, nil
}

// PeakAmplitude is max |x - mean(x)|; 0 for an empty window.
func PeakAmplitude(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var peak float64
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v-mean))
	}
	return peak
}

// Detector binds a Reference to the axis it analyses.
type Detector struct {
	ref  *Reference
	axis imu.Axis
}

// NewDetector builds a detector for one axis of a sample window.
func NewDetector(ref *Reference, axis imu.Axis) *Detector {
	return &Detector{ref: ref, axis: axis}
}

// Reference returns the bound reference tables.
func (d *Detector) Reference() *Reference { return d.ref }

// Window runs Detect and PeakAmplitude on the detector's axis of window.
func (d *Detector) Window(window []imu.Sample) (Result, float64, error) {
	x := imu.Component(window, d.axis)
	res, err := Detect(d.ref, x)
	if err != nil {
		return Result{}, 0, err
	}
	return res, PeakAmplitude(x), nil
}
