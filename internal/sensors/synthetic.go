// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// Synthetic produces a 1 g gravity offset on z plus a sine at the stimulus
// frequency, for running the whole chain without hardware. Time advances
// one sample per read of sensor 0, so a scheduler reading sensors in index
// order sees one sample per tick.
type Synthetic struct {
	sensors int
	rate    float64
	perG    float64 // counts per g
	gain    float64 // g of vibration at setting 1.0

	freq    atomic.Uint64 // float64 bits
	setting atomic.Uint64 // float64 bits
	tick    uint64
}

// NewSynthetic builds a generator for sensors sensors at rateHz. The
// vibration is gainG·setting g at freqHz; the setting starts at 1.
func NewSynthetic(sensors int, fullScaleG, rateHz, freqHz, gainG float64) *Synthetic {
	s := &Synthetic{
		sensors: sensors,
		rate:    rateHz,
		perG:    imu.Resolution / (2 * fullScaleG),
		gain:    gainG,
	}
	s.freq.Store(math.Float64bits(freqHz))
	s.setting.Store(math.Float64bits(1))
	return s
}

// Apply changes the vibration, so a Synthetic can stand in for the shaker.
func (s *Synthetic) Apply(_ context.Context, freqHz, amplitude float64) error {
	s.freq.Store(math.Float64bits(freqHz))
	s.setting.Store(math.Float64bits(amplitude))
	return nil
}

// ReadRaw implements imu.Reader. Sensor i sees the same vibration scaled
// by 1/(i+1) so channels are distinguishable.
func (s *Synthetic) ReadRaw(index int) (imu.Raw, error) {
	if index < 0 || index >= s.sensors {
		return imu.Raw{}, fmt.Errorf("sensor index %d out of range (%d sensors)", index, s.sensors)
	}
	if index == 0 {
		s.tick++
	}
	var n float64
	if s.tick > 0 {
		n = float64(s.tick - 1)
	}
	f := math.Float64frombits(s.freq.Load())
	a := s.gain * math.Float64frombits(s.setting.Load()) / float64(index+1)
	g := a * math.Sin(2*math.Pi*f*n/s.rate)
	return imu.Raw{
		Ax: 0,
		Ay: 0,
		Az: s.counts(1 + g),
	}, nil
}

func (s *Synthetic) counts(g float64) int16 {
	v := math.Round(g * s.perG)
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}
