package quadrature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

const (
	fs = 1660.0
	f  = 70.0
	w  = 237
)

func sine(a, phase, offset float64) []float64 {
	x := make([]float64, w)
	for n := range x {
		x[n] = offset + a*math.Sin(2*math.Pi*f*float64(n)/fs+phase)
	}
	return x
}

func mustRef(t *testing.T) *Reference {
	t.Helper()
	r, err := NewReference(f, fs, w)
	require.NoError(t, err)
	return r
}

func TestDetectPureSine(t *testing.T) {
	ref := mustRef(t)
	for _, a := range []float64{0.5, 1, 9.8} {
		res, err := Detect(ref, sine(a, 0, 0))
		require.NoError(t, err)
		// W covers ~9.99 cycles, so leakage stays within a couple of percent
		assert.InEpsilon(t, a, res.Amplitude, 0.02)
		assert.InDelta(t, 0, res.Phase, 0.05)
	}
}

func TestDetectWholeCyclesIsExact(t *testing.T) {
	// 100 samples at 1 kHz hold exactly ten 100 Hz cycles
	ref, err := NewReference(100, 1000, 100)
	require.NoError(t, err)
	for _, a := range []float64{1, 3.7} {
		x := make([]float64, 100)
		for n := range x {
			x[n] = 9.8 + a*math.Sin(2*math.Pi*100*float64(n)/1000)
		}
		res, err := Detect(ref, x)
		require.NoError(t, err)
		assert.InDelta(t, a, res.Amplitude, 1e-9)
		assert.InDelta(t, 0, res.Phase, 1e-9)
	}
}

func TestDetectCosineIsQuarterTurn(t *testing.T) {
	res, err := Detect(mustRef(t), sine(2, math.Pi/2, 0))
	require.NoError(t, err)
	assert.InEpsilon(t, 2, res.Amplitude, 0.02)
	assert.InDelta(t, math.Pi/2, res.Phase, 0.05)
}

func TestDetectZeroInput(t *testing.T) {
	res, err := Detect(mustRef(t), make([]float64, w))
	require.NoError(t, err)
	assert.Zero(t, res.Amplitude)
	assert.Zero(t, res.SS)
	assert.Zero(t, res.CC)
}

func TestDetectIsDeterministic(t *testing.T) {
	ref := mustRef(t)
	x := sine(1.3, 0.4, 9.8)
	a, err := Detect(ref, x)
	require.NoError(t, err)
	b, err := Detect(ref, x)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDetectRejectsWrongLength(t *testing.T) {
	_, err := Detect(mustRef(t), make([]float64, w-1))
	assert.ErrorIs(t, err, ErrWindowLength)

	_, err = NewReference(f, fs, 0)
	assert.Error(t, err)
}

func TestPeakAmplitude(t *testing.T) {
	assert.Zero(t, PeakAmplitude(nil))
	assert.Equal(t, 2.0, PeakAmplitude([]float64{9, 11, 10, 12, 8}))
	assert.InDelta(t, 1.0, PeakAmplitude(sine(1, 0, 9.8)), 0.01)
}

func TestDetectorUsesAxis(t *testing.T) {
	x := sine(1, 0, 0)
	window := make([]imu.Sample, w)
	for n := range window {
		window[n] = imu.Sample{Ax: 5, Az: x[n]}
	}

	res, peak, err := NewDetector(mustRef(t), imu.AxisZ).Window(window)
	require.NoError(t, err)
	assert.InEpsilon(t, 1, res.Amplitude, 0.02)
	assert.InDelta(t, 1, peak, 0.01)

	res, peak, err = NewDetector(mustRef(t), imu.AxisX).Window(window)
	require.NoError(t, err)
	assert.Less(t, res.Amplitude, 0.05)
	assert.Zero(t, peak)

	_, _, err = NewDetector(mustRef(t), imu.AxisZ).Window(window[:10])
	assert.ErrorIs(t, err, ErrWindowLength)
}
