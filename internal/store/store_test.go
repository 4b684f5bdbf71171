package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

func set(seq uint16, n int, v float64) imu.Set {
	s := imu.Set{Seq: seq, Samples: make([]imu.Sample, n)}
	for i := range s.Samples {
		s.Samples[i] = imu.Sample{Sensor: i, Az: v + float64(i)*1000}
	}
	return s
}

func az(w []imu.Sample) []float64 { return imu.Component(w, imu.AxisZ) }

type counts struct{ evicted, recorded int }

func (c *counts) SamplesEvicted(n int)  { c.evicted += n }
func (c *counts) SamplesRecorded(n int) { c.recorded += n }

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 3; i++ {
		assert.False(t, r.Push(imu.Sample{Az: float64(i)}))
	}
	assert.True(t, r.Full())
	assert.True(t, r.Push(imu.Sample{Az: 3}))
	assert.Equal(t, []float64{1, 2, 3}, az(r.Snapshot()))

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestWindowKeepsLastW(t *testing.T) {
	const w = 5
	c := &counts{}
	s := New(2, w, WithObserver(c))
	for i := 0; i <= w; i++ {
		s.Append(set(uint16(i), 2, float64(i)))
	}

	assert.Equal(t, []float64{1, 2, 3, 4, 5}, az(s.Window(0)))
	assert.Equal(t, []float64{1001, 1002, 1003, 1004, 1005}, az(s.Window(1)))
	assert.True(t, s.Full(0))
	assert.Equal(t, 2, c.evicted)
	assert.Nil(t, s.Window(2))
}

func TestPartialWindowIsOrdered(t *testing.T) {
	s := New(1, 10)
	s.Append(set(0, 1, 7))
	s.Append(set(1, 1, 8))
	assert.Equal(t, []float64{7, 8}, az(s.Window(0)))
	assert.False(t, s.Full(0))
}

func TestSnapshotUnaffectedByLaterAppends(t *testing.T) {
	s := New(1, 3)
	for i := 0; i < 3; i++ {
		s.Append(set(uint16(i), 1, float64(i)))
	}
	snap := s.Window(0)
	for i := 3; i < 10; i++ {
		s.Append(set(uint16(i), 1, float64(i)))
	}
	assert.Equal(t, []float64{0, 1, 2}, az(snap))
}

func TestRecordingLifecycle(t *testing.T) {
	base := time.Unix(1700000000, 0)
	clock := []time.Time{base, base, base.Add(time.Millisecond), base.Add(-time.Second)}
	i := 0
	now := func() time.Time {
		ts := clock[i%len(clock)]
		i++
		return ts
	}
	c := &counts{}
	s := New(2, 4, WithClock(now), WithObserver(c))

	s.Append(set(0, 2, 0)) // before start: not recorded
	s.StartRecording(1)
	for k := 1; k <= 3; k++ {
		s.Append(set(uint16(k), 2, float64(k)))
	}
	on, n := s.Recording()
	assert.True(t, on)
	assert.Equal(t, 3, n)

	sess := s.StopRecording()
	assert.Equal(t, 1, sess.Channel)
	assert.Equal(t, base, sess.StartedAt)
	rec := sess.Samples
	require.Len(t, rec, 3)
	for k, r := range rec {
		assert.Equal(t, 1, r.Sample.Sensor)
		assert.Equal(t, float64(k+1)+1000, r.Sample.Az)
	}
	assert.Equal(t, base, rec[0].Timestamp)
	assert.Equal(t, base.Add(time.Millisecond), rec[1].Timestamp)
	// clock went backwards: clamped
	assert.Equal(t, base.Add(time.Millisecond), rec[2].Timestamp)
	assert.Equal(t, 3, c.recorded)

	on, n = s.Recording()
	assert.False(t, on)
	assert.Zero(t, n)
	assert.Empty(t, s.StopRecording().Samples)

	s.StartRecording(AllSensors)
	s.Append(set(9, 2, 9))
	s.StartRecording(AllSensors) // restart drops previous content
	s.Append(set(10, 2, 10))
	rec = s.StopRecording().Samples
	require.Len(t, rec, 2)
	assert.Equal(t, 10.0, rec[0].Sample.Az)
	assert.Equal(t, 1010.0, rec[1].Sample.Az)
}

func TestClear(t *testing.T) {
	s := New(1, 3)
	s.StartRecording(0)
	s.Append(set(0, 1, 1))
	s.Clear()
	assert.Empty(t, s.Window(0))
	on, n := s.Recording()
	assert.True(t, on)
	assert.Zero(t, n)
}

func TestOnWindowFiresPerWindow(t *testing.T) {
	var seqs []uint16
	s := New(1, 4, WithOnWindow(0, func(seq uint16) { seqs = append(seqs, seq) }))
	for i := 0; i < 12; i++ {
		s.Append(set(uint16(i), 1, float64(i)))
	}
	assert.Equal(t, []uint16{3, 7, 11}, seqs)
}

func TestOnWindowIgnoresOutOfRangeChannel(t *testing.T) {
	for _, ch := range []int{AllSensors, 2} {
		fired := false
		s := New(2, 2, WithOnWindow(ch, func(uint16) { fired = true }))
		for i := 0; i < 4; i++ {
			s.Append(set(uint16(i), 2, 0))
		}
		assert.False(t, fired)
		assert.Len(t, s.Window(1), 2)
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	const w = 16
	s := New(3, w)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			s.Append(set(uint16(i), 3, float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			ws := s.Windows()
			// every sensor saw the same frames
			if !assert.Equal(t, len(ws[0]), len(ws[2])) {
				return
			}
			for k := range ws[0] {
				assert.Equal(t, ws[0][k].Az+2000, ws[2][k].Az)
			}
		}
	}()
	wg.Wait()
	assert.Len(t, s.Window(0), w)
}
