package sweep

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/imu"
	"github.com/relabs-tech/vibration_bench/internal/quadrature"
)

const (
	fs = 1660.0
	f  = 70.0
	w  = 237
)

// bench answers Window with a sine whose amplitude tracks the last setting.
type bench struct {
	applied []float64
	failAt  map[float64]bool
	short   bool
	gain    float64
}

func (b *bench) Apply(_ context.Context, freq, amp float64) error {
	if b.failAt[amp] {
		return errors.New("dac write failed")
	}
	b.applied = append(b.applied, amp)
	return nil
}

func (b *bench) Window(int) []imu.Sample {
	n := w
	if b.short {
		n = w / 2
	}
	amp := 0.0
	if len(b.applied) > 0 {
		amp = b.applied[len(b.applied)-1] * b.gain
	}
	out := make([]imu.Sample, n)
	for i := range out {
		out[i] = imu.Sample{Az: 9.8 + amp*math.Sin(2*math.Pi*f*float64(i)/fs)}
	}
	return out
}

type rows struct {
	got []Row
	err error
}

func (r *rows) WriteRow(row Row) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, row)
	return nil
}

func noWait(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func detector(t *testing.T) *quadrature.Detector {
	t.Helper()
	ref, err := quadrature.NewReference(f, fs, w)
	require.NoError(t, err)
	return quadrature.NewDetector(ref, imu.AxisZ)
}

func TestSteps(t *testing.T) {
	s := Steps(0, 1, 0.01)
	require.Len(t, s, 101)
	assert.Equal(t, 0.0, s[0])
	assert.Equal(t, 0.07, s[7])
	assert.Equal(t, 0.29, s[29])
	assert.Equal(t, 1.0, s[100])

	assert.Equal(t, []float64{0.5}, Steps(0.5, 0.5, 0.1))
	assert.Nil(t, Steps(1, 0, 0.1))
	assert.Nil(t, Steps(0, 1, 0))
}

func TestRunEmitsOneRowPerStep(t *testing.T) {
	b := &bench{gain: 2}
	sink := &rows{}
	cfg := Config{FreqHz: f, Start: 0, Stop: 1, Step: 0.01}
	c := NewController(cfg, b, b, detector(t), sink, withWait(noWait))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 101}, sum)
	require.Len(t, sink.got, 101)

	last := sink.got[100]
	assert.Equal(t, f, last.Freq)
	assert.Equal(t, 1.0, last.AmpSet)
	assert.InEpsilon(t, 2.0, last.QDAmp, 0.02)
	assert.InDelta(t, 2.0, last.MaxAmp, 0.02)
	assert.Less(t, sink.got[0].QDAmp, 0.02)
}

func TestRunSkipsFailedSteps(t *testing.T) {
	b := &bench{gain: 1, failAt: map[float64]bool{0.2: true}}
	sink := &rows{}
	var ok, bad int
	c := NewController(Config{FreqHz: f, Start: 0, Stop: 0.4, Step: 0.1}, b, b, detector(t), sink,
		withWait(noWait),
		WithStepHook(func(good bool) {
			if good {
				ok++
			} else {
				bad++
			}
		}))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Rows: 4, Skipped: 1}, sum)
	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, bad)
	// no retry
	assert.Equal(t, []float64{0, 0.1, 0.3, 0.4}, b.applied)
	for _, r := range sink.got {
		assert.NotEqual(t, 0.2, r.AmpSet)
	}
}

func TestRunSkipsShortWindow(t *testing.T) {
	b := &bench{short: true}
	sink := &rows{}
	c := NewController(Config{FreqHz: f, Start: 0, Stop: 0.1, Step: 0.1}, b, b, detector(t), sink, withWait(noWait))
	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 2}, sum)
	assert.Empty(t, sink.got)
}

func TestRunStopsOnSinkError(t *testing.T) {
	b := &bench{}
	sink := &rows{err: errors.New("disk full")}
	c := NewController(Config{FreqHz: f, Start: 0, Stop: 1, Step: 0.5}, b, b, detector(t), sink, withWait(noWait))
	_, err := c.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, b.applied, 1)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &bench{}
	sink := &rows{}
	c := NewController(Config{FreqHz: f, Start: 0, Stop: 1, Step: 0.01, Settle: time.Hour}, b, b, detector(t), sink)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not stop")
	}
	assert.Empty(t, sink.got)
}
