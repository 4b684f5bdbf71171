// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Raw is one raw accelerometer triple as the sensor reports it (counts).
type Raw struct {
	Ax int16 `json:"ax"`
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`
}

// Sample is one physical-unit accelerometer reading for a single sensor.
// Values are never modified after construction.
type Sample struct {
	Sensor int     `json:"sensor"`
	Ax     float64 `json:"ax"`
	Ay     float64 `json:"ay"`
	Az     float64 `json:"az"`
}

// Set is one validated frame: a synchronized sample for every sensor,
// tagged with the frame's wire sequence number.
type Set struct {
	Seq     uint16   `json:"seq"`
	Samples []Sample `json:"samples"`
}

// Reader is the sensor driver seen by the acquisition side: raw tri-axis
// counts per sensor index.
type Reader interface {
	ReadRaw(index int) (Raw, error)
}

// Axis selects one component of a Sample.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Value returns the requested component of s.
func (a Axis) Value(s Sample) float64 {
	switch a {
	case AxisX:
		return s.Ax
	case AxisY:
		return s.Ay
	default:
		return s.Az
	}
}

// Component extracts one axis from a window of samples.
func Component(window []Sample, a Axis) []float64 {
	out := make([]float64, len(window))
	for i, s := range window {
		out[i] = a.Value(s)
	}
	return out
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// ParseAxis maps "x", "y" or "z" to an Axis; anything else is z.
func ParseAxis(s string) Axis {
	switch s {
	case "x", "X":
		return AxisX
	case "y", "Y":
		return AxisY
	default:
		return AxisZ
	}
}
