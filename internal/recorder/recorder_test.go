package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/imu"
	"github.com/relabs-tech/vibration_bench/internal/store"
	"github.com/relabs-tech/vibration_bench/internal/sweep"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	assert.Equal(t,
		filepath.Join("data", "bench1", "bench1-measurement-20260304_050607.csv"),
		Path("data", "bench1", KindMeasurement, at))
}

func TestSaveMeasurement(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	ts := time.UnixMicro(1767225600123456)
	sess := store.Session{
		Channel: 0,
		Samples: []store.Recorded{
			{Timestamp: ts, Sample: imu.Sample{Ax: 0.0004, Ay: -1.23456, Az: 9.8}},
			{Timestamp: ts.Add(602 * time.Microsecond), Sample: imu.Sample{Ax: 1, Ay: 2, Az: 3}},
		},
	}

	path, err := SaveMeasurement(dir, "sample", sess, at)
	require.NoError(t, err)
	assert.Equal(t, Path(dir, "sample", KindMeasurement, at), path)

	assert.Equal(t, []string{
		"timestamp,ax,ay,az",
		"1767225600123456,0.000,-1.235,9.800",
		"1767225600124058,1.000,2.000,3.000",
	}, readLines(t, path))
}

func TestSaveMeasurementEmpty(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveMeasurement(dir, "sample", store.Session{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweepWriterFlushesEachRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qd.csv")
	w, err := NewSweepWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteRow(sweep.Row{Freq: 70, AmpSet: 0.01, QDAmp: 0.125, MaxAmp: 0.5}))
	// readable before Close
	assert.Equal(t, []string{"freq,amp_set,qd_amp,max_amp", "70,0.01,0.125,0.5"}, readLines(t, path))

	require.NoError(t, w.WriteRow(sweep.Row{Freq: 70, AmpSet: 1, QDAmp: 2, MaxAmp: 2.5}))
	require.NoError(t, w.Close())
	assert.Len(t, readLines(t, path), 3)
}
