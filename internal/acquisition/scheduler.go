// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package acquisition is the device side: it samples every sensor on a
// fixed-rate tick and streams one frame per tick.
package acquisition

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// SentinelRaw marks a failed read when sentinel substitution is on.
var SentinelRaw = imu.Raw{Ax: math.MinInt16, Ay: math.MinInt16, Az: math.MinInt16}

// Scheduler owns the frame encoder. Tick is not reentrant; Run calls it
// from a single goroutine. Start, Stop and Restart may be called from any
// goroutine and only flip the active flag.
type Scheduler struct {
	reader imu.Reader
	enc    *frame.Encoder
	out    io.Writer
	period time.Duration

	active   atomic.Bool
	sentinel bool
	last     []imu.Raw
	raws     []imu.Raw

	ticks     atomic.Uint64
	readErrs  atomic.Uint64
	writeErrs atomic.Uint64
	overruns  atomic.Uint64

	onOverrun func(time.Duration)
	log       *zap.Logger
	errLimit  *rate.Limiter
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSentinel sends SentinelRaw for a failed read instead of the last
// good triple.
func WithSentinel(on bool) Option {
	return func(s *Scheduler) { s.sentinel = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOverrunHook is called with the tick duration whenever a tick takes
// longer than the period.
func WithOverrunHook(fn func(time.Duration)) Option {
	return func(s *Scheduler) { s.onOverrun = fn }
}

func withClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler streams reader through enc to out every period. It starts
// inactive.
func NewScheduler(reader imu.Reader, enc *frame.Encoder, out io.Writer, period time.Duration, opts ...Option) (*Scheduler, error) {
	if period <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %v", period)
	}
	n := enc.Sensors()
	s := &Scheduler{
		reader:   reader,
		enc:      enc,
		out:      out,
		period:   period,
		last:     make([]imu.Raw, n),
		raws:     make([]imu.Raw, n),
		log:      zap.NewNop(),
		errLimit: rate.NewLimiter(rate.Every(time.Second), 1),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start arms streaming.
func (s *Scheduler) Start() { s.active.Store(true) }

// Stop disarms streaming. A frame already being written completes.
func (s *Scheduler) Stop() { s.active.Store(false) }

// Restart re-arms streaming without touching the sensors.
func (s *Scheduler) Restart() { s.active.Store(true) }

// Active reports whether ticks produce frames.
func (s *Scheduler) Active() bool { return s.active.Load() }

// Apply executes a command.
func (s *Scheduler) Apply(cmd frame.Command) {
	switch cmd {
	case frame.CmdStart:
		s.Start()
	case frame.CmdStop:
		s.Stop()
	case frame.CmdRestart:
		s.Restart()
	}
}

// Tick reads every sensor in index order and writes one frame with a
// single Write. It does nothing while inactive.
func (s *Scheduler) Tick() {
	if !s.active.Load() {
		return
	}
	for i := range s.raws {
		r, err := s.reader.ReadRaw(i)
		if err != nil {
			s.readErrs.Add(1)
			if s.errLimit.Allow() {
				s.log.Warn("sensor read failed", zap.Int("sensor", i), zap.Error(err))
			}
			if s.sentinel {
				r = SentinelRaw
			} else {
				r = s.last[i]
			}
		} else {
			s.last[i] = r
		}
		s.raws[i] = r
	}

	b, err := s.enc.Encode(s.raws)
	if err != nil {
		// raws always has enc.Sensors() entries
		panic(err)
	}
	s.ticks.Add(1)
	if _, err := s.out.Write(b); err != nil {
		s.writeErrs.Add(1)
		if s.errLimit.Allow() {
			s.log.Warn("frame write failed", zap.Error(err))
		}
	}
}

// Run ticks every period until ctx is done. Ticks never overlap: a slow
// tick delays the next one and is counted as an overrun.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.log.Info("acquisition started",
		zap.Int("sensors", s.enc.Sensors()),
		zap.Duration("period", s.period))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("acquisition stopped", zap.Uint64("frames", s.ticks.Load()))
			return nil
		case <-ticker.C:
			s.timedTick()
		}
	}
}

func (s *Scheduler) timedTick() {
	t0 := s.now()
	s.Tick()
	if d := s.now().Sub(t0); d > s.period {
		s.overruns.Add(1)
		if s.onOverrun != nil {
			s.onOverrun(d)
		}
	}
}

// CommandLoop applies command bytes read from r until ctx is done or r
// fails. Unknown bytes are ignored and nothing is sent back.
func (s *Scheduler) CommandLoop(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		cmd, ok := frame.ParseCommand(b)
		if !ok {
			continue
		}
		s.log.Info("command", zap.Stringer("cmd", cmd))
		s.Apply(cmd)
	}
}

// Stats is a point-in-time view of the counters.
type Stats struct {
	Frames      uint64 `json:"frames"`
	ReadErrors  uint64 `json:"read_errors"`
	WriteErrors uint64 `json:"write_errors"`
	Overruns    uint64 `json:"overruns"`
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Frames:      s.ticks.Load(),
		ReadErrors:  s.readErrs.Load(),
		WriteErrors: s.writeErrs.Load(),
		Overruns:    s.overruns.Load(),
	}
}
