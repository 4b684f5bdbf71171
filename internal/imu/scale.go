// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// Gravity is the g to m/s² factor used by the bench software.
const Gravity = 9.8

// Resolution is the span of a signed 16-bit count.
const Resolution = 1 << 16

// Units selects the physical unit produced by Scale.
type Units string

const (
	UnitsG   Units = "g"
	UnitsMS2 Units = "ms2"
)

// Scale converts raw counts into physical units for a sensor configured
// with a ±FullScaleG range.
type Scale struct {
	FullScaleG float64
	Units      Units
}

// NewScale validates the full-scale range (2, 4, 8 or 16 g).
func NewScale(fullScaleG float64, units Units) (Scale, error) {
	switch fullScaleG {
	case 2, 4, 8, 16:
	default:
		return Scale{}, fmt.Errorf("full scale must be 2, 4, 8 or 16 g, got %v", fullScaleG)
	}
	if units != UnitsG && units != UnitsMS2 {
		return Scale{}, fmt.Errorf("unknown units %q", units)
	}
	return Scale{FullScaleG: fullScaleG, Units: units}, nil
}

// Convert returns raw × (2 × full scale) / 65536, times 9.8 for m/s².
func (s Scale) Convert(raw int16) float64 {
	v := float64(raw) * (2 * s.FullScaleG) / Resolution
	if s.Units == UnitsMS2 {
		v *= Gravity
	}
	return v
}

// Sample converts one raw triple for the given sensor index.
func (s Scale) Sample(sensor int, r Raw) Sample {
	return Sample{
		Sensor: sensor,
		Ax:     s.Convert(r.Ax),
		Ay:     s.Convert(r.Ay),
		Az:     s.Convert(r.Az),
	}
}

// Range returns the full-scale magnitude in the configured units.
func (s Scale) Range() float64 {
	if s.Units == UnitsMS2 {
		return s.FullScaleG * Gravity
	}
	return s.FullScaleG
}
