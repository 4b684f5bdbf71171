package imu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleConvert(t *testing.T) {
	s, err := NewScale(16, UnitsG)
	require.NoError(t, err)

	assert.Equal(t, 16384*32.0/65536, s.Convert(16384))
	assert.Equal(t, 8.0, s.Convert(16384))
	assert.Equal(t, -16.0, s.Convert(math.MinInt16))
	assert.Equal(t, 0.0, s.Convert(0))

	ms2, err := NewScale(16, UnitsMS2)
	require.NoError(t, err)
	assert.InDelta(t, 8.0*Gravity, ms2.Convert(16384), 1e-12)
	assert.InDelta(t, 16*Gravity, ms2.Range(), 1e-12)
}

func TestNewScaleRejectsBadRange(t *testing.T) {
	_, err := NewScale(3, UnitsG)
	assert.Error(t, err)

	_, err = NewScale(2, Units("furlongs"))
	assert.Error(t, err)
}

func TestComponent(t *testing.T) {
	w := []Sample{{Ax: 1, Ay: 2, Az: 3}, {Ax: 4, Ay: 5, Az: 6}}
	assert.Equal(t, []float64{1, 4}, Component(w, AxisX))
	assert.Equal(t, []float64{2, 5}, Component(w, ParseAxis("y")))
	assert.Equal(t, []float64{3, 6}, Component(w, ParseAxis("anything")))
}
