// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package recorder writes recordings and sweep results as flat CSV files.
package recorder

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/relabs-tech/vibration_bench/internal/store"
	"github.com/relabs-tech/vibration_bench/internal/sweep"
)

// File kinds used in generated names.
const (
	KindMeasurement = "measurement"
	KindQD          = "qd"
)

var (
	measurementHeader = []string{"timestamp", "ax", "ay", "az"}
	sweepHeader       = []string{"freq", "amp_set", "qd_amp", "max_amp"}
)

// Path returns <dir>/<base>/<base>-<kind>-YYYYMMDD_HHMMSS.csv.
func Path(dir, base, kind string, at time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.csv", base, kind, at.Format("20060102_150405"))
	return filepath.Join(dir, base, name)
}

// csvFile is a buffered CSV file; the buffer is flushed on Flush and Close.
type csvFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows int
}

func create(path string, header []string) (*csvFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	c := &csvFile{path: path, file: f, buf: bw, csv: csv.NewWriter(bw)}
	if err := c.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	return c, nil
}

func (c *csvFile) write(row []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.csv.Write(row); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *csvFile) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csv.Flush()
	if err := c.csv.Error(); err != nil {
		return err
	}
	return c.buf.Flush()
}

func (c *csvFile) close() error {
	ferr := c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.file.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// MeasurementWriter writes timestamp,ax,ay,az rows: the timestamp in
// integer microseconds since the Unix epoch, values with three decimals.
type MeasurementWriter struct {
	f *csvFile
}

// NewMeasurementWriter creates path (and its directory) and writes the header.
func NewMeasurementWriter(path string) (*MeasurementWriter, error) {
	f, err := create(path, measurementHeader)
	if err != nil {
		return nil, err
	}
	return &MeasurementWriter{f: f}, nil
}

// Write appends one recorded sample.
func (w *MeasurementWriter) Write(r store.Recorded) error {
	return w.f.write([]string{
		strconv.FormatInt(r.Timestamp.UnixMicro(), 10),
		strconv.FormatFloat(r.Sample.Ax, 'f', 3, 64),
		strconv.FormatFloat(r.Sample.Ay, 'f', 3, 64),
		strconv.FormatFloat(r.Sample.Az, 'f', 3, 64),
	})
}

// Rows returns the number of data rows written.
func (w *MeasurementWriter) Rows() int {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	return w.f.rows
}

// Path returns the file path.
func (w *MeasurementWriter) Path() string { return w.f.path }

// Close flushes and closes the file.
func (w *MeasurementWriter) Close() error { return w.f.close() }

// SaveMeasurement writes a finished session to a new file named after base
// and at. An empty session writes nothing and returns "".
func SaveMeasurement(dir, base string, sess store.Session, at time.Time) (string, error) {
	if len(sess.Samples) == 0 {
		return "", nil
	}
	w, err := NewMeasurementWriter(Path(dir, base, KindMeasurement, at))
	if err != nil {
		return "", err
	}
	for _, r := range sess.Samples {
		if err := w.Write(r); err != nil {
			w.Close()
			return "", fmt.Errorf("write %s: %w", w.Path(), err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", w.Path(), err)
	}
	return w.Path(), nil
}

// SweepWriter writes freq,amp_set,qd_amp,max_amp rows and flushes each one,
// so an interrupted sweep keeps every finished step.
type SweepWriter struct {
	f *csvFile
}

var _ sweep.RowSink = (*SweepWriter)(nil)

// NewSweepWriter creates path (and its directory) and writes the header.
func NewSweepWriter(path string) (*SweepWriter, error) {
	f, err := create(path, sweepHeader)
	if err != nil {
		return nil, err
	}
	if err := f.flush(); err != nil {
		f.close()
		return nil, err
	}
	return &SweepWriter{f: f}, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteRow implements sweep.RowSink.
func (w *SweepWriter) WriteRow(r sweep.Row) error {
	if err := w.f.write([]string{
		formatFloat(r.Freq),
		formatFloat(r.AmpSet),
		formatFloat(r.QDAmp),
		formatFloat(r.MaxAmp),
	}); err != nil {
		return err
	}
	return w.f.flush()
}

// Path returns the file path.
func (w *SweepWriter) Path() string { return w.f.path }

// Close flushes and closes the file.
func (w *SweepWriter) Close() error { return w.f.close() }
