// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// Sink receives validated frames. Append must not block; the store's
// ring buffers evict instead of waiting.
type Sink interface {
	Append(set imu.Set)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(imu.Set)

func (f SinkFunc) Append(set imu.Set) { f(set) }

// Observer is told about every accepted frame, rejected frame and
// sequence gap. Implementations must be cheap and non-blocking.
type Observer interface {
	FrameAccepted(seq uint16)
	Desync()
	Gap(missing int)
}

type nopObserver struct{}

func (nopObserver) FrameAccepted(uint16) {}
func (nopObserver) Desync()              {}
func (nopObserver) Gap(int)              {}

// Stats is a point-in-time copy of the decoder counters.
type Stats struct {
	Frames    uint64 `json:"frames"`
	Desyncs   uint64 `json:"desyncs"`
	Gaps      uint64 `json:"gaps"`
	Missing   uint64 `json:"missing"`
	Discarded uint64 `json:"discarded"`
	Bytes     uint64 `json:"bytes"`
}

type state int

const (
	seekHeader state = iota
	readBody
)

// Decoder recovers frames from an unbounded byte stream.
//
// SEEK_HEADER drops bytes until the header constant; READ_BODY waits until
// a whole frame is buffered; VALIDATE either emits the frame and consumes
// it, or rejects it and restarts the scan at the byte after the candidate
// header. Header bytes inside payloads are therefore harmless.
type Decoder struct {
	n     int
	size  int
	scale imu.Scale
	sink  Sink

	obs    Observer
	log    *zap.Logger
	warnAt rate.Sometimes

	resyncAfter int
	onResync    func()
	rejectRun   int

	st  state
	buf []byte
	off int
	seq SequenceTracker

	frames    atomic.Uint64
	desyncs   atomic.Uint64
	gaps      atomic.Uint64
	missing   atomic.Uint64
	discarded atomic.Uint64
	bytes     atomic.Uint64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithObserver reports events to o (metrics).
func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.obs = o }
}

// WithLogger sets the logger; rejects are logged at most once per second.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) { d.log = l }
}

// WithResyncHook calls fn after threshold consecutive rejected frames and
// then starts counting again. The host uses it to stop and restart the
// device stream.
func WithResyncHook(threshold int, fn func()) Option {
	return func(d *Decoder) {
		d.resyncAfter = threshold
		d.onResync = fn
	}
}

// NewDecoder builds a decoder for n sensors that pushes each validated
// frame, converted with scale, into sink.
func NewDecoder(n int, scale imu.Scale, sink Sink, opts ...Option) (*Decoder, error) {
	if err := checkSensors(n); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("decoder: nil sink")
	}
	d := &Decoder{
		n:      n,
		size:   Len(n),
		scale:  scale,
		sink:   sink,
		obs:    nopObserver{},
		log:    zap.NewNop(),
		warnAt: rate.Sometimes{Interval: time.Second},
		buf:    make([]byte, 0, 4*Len(n)),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Write feeds stream bytes. It never fails and never blocks on the sink.
func (d *Decoder) Write(p []byte) (int, error) {
	d.bytes.Add(uint64(len(p)))
	d.buf = append(d.buf, p...)
	d.drain()
	d.compact()
	return len(p), nil
}

func (d *Decoder) drain() {
	for {
		pending := d.buf[d.off:]
		switch d.st {
		case seekHeader:
			i := bytes.IndexByte(pending, Header)
			if i < 0 {
				d.discarded.Add(uint64(len(pending)))
				d.off = len(d.buf)
				return
			}
			d.discarded.Add(uint64(i))
			d.off += i
			d.st = readBody

		case readBody:
			if len(pending) < d.size {
				return
			}
			if d.validate(pending[:d.size]) {
				d.off += d.size
			} else {
				d.off++
			}
			d.st = seekHeader
		}
	}
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}

func (d *Decoder) validate(candidate []byte) bool {
	seq, raws, err := Parse(candidate, d.n)
	if err != nil {
		d.reject(err)
		return false
	}
	d.rejectRun = 0

	if gap := d.seq.Observe(seq); gap > 0 {
		d.gaps.Add(1)
		d.missing.Add(uint64(gap))
		d.obs.Gap(gap)
		d.warnAt.Do(func() {
			d.log.Warn("sequence gap", zap.Uint16("seq", seq), zap.Int("missing", gap))
		})
	}

	set := imu.Set{Seq: seq, Samples: make([]imu.Sample, d.n)}
	for i, r := range raws {
		set.Samples[i] = d.scale.Sample(i, r)
	}
	d.frames.Add(1)
	d.obs.FrameAccepted(seq)
	d.sink.Append(set)
	return true
}

func (d *Decoder) reject(err error) {
	d.desyncs.Add(1)
	d.obs.Desync()
	d.warnAt.Do(func() {
		d.log.Warn("frame rejected, resyncing", zap.Error(err), zap.Uint64("desyncs", d.desyncs.Load()))
	})

	d.rejectRun++
	if d.onResync != nil && d.resyncAfter > 0 && d.rejectRun >= d.resyncAfter {
		d.rejectRun = 0
		d.onResync()
	}
}

// Stats returns the current counters; safe from any goroutine.
func (d *Decoder) Stats() Stats {
	return Stats{
		Frames:    d.frames.Load(),
		Desyncs:   d.desyncs.Load(),
		Gaps:      d.gaps.Load(),
		Missing:   d.missing.Load(),
		Discarded: d.discarded.Load(),
		Bytes:     d.bytes.Load(),
	}
}

// Run copies r into the decoder until r fails or ctx is done. A blocked
// read is only released by closing r. io.EOF is a clean end of stream.
func (d *Decoder) Run(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.Read(chunk)
		if n > 0 {
			d.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
