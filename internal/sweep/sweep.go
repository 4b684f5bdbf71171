// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sweep steps the stimulus amplitude through a range and records
// the quadrature response of one channel at each step.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/imu"
	"github.com/relabs-tech/vibration_bench/internal/quadrature"
)

// Stimulus drives the shaker (or whatever excites the bench).
type Stimulus interface {
	Apply(ctx context.Context, freqHz, amplitude float64) error
}

// WindowSource yields the current analysis window of a sensor.
type WindowSource interface {
	Window(sensor int) []imu.Sample
}

// Row is one sweep output line.
type Row struct {
	Freq   float64 `json:"freq"`
	AmpSet float64 `json:"amp_set"`
	QDAmp  float64 `json:"qd_amp"`
	MaxAmp float64 `json:"max_amp"`
}

// RowSink persists rows as they are produced.
type RowSink interface {
	WriteRow(Row) error
}

// ErrWindowNotFull is logged for a step whose window was still warming up.
var ErrWindowNotFull = errors.New("analysis window not full")

// Steps returns start, start+step, ... up to and including stop. Values are
// rounded to 1e-9 so 0..1 by 0.01 yields exactly 101 clean settings.
func Steps(start, stop, step float64) []float64 {
	if step <= 0 || stop < start {
		return nil
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((start+float64(i)*step)*1e9) / 1e9
	}
	return out
}

// Config describes one sweep.
type Config struct {
	FreqHz  float64
	Start   float64
	Stop    float64
	Step    float64
	Channel int
	// Window is the time one analysis window spans; each step waits at
	// least Window+Settle after applying the setting.
	Window time.Duration
	Settle time.Duration
}

// Summary counts what a run produced.
type Summary struct {
	Rows    int
	Skipped int
}

// Controller runs sweeps. It holds no state between runs.
type Controller struct {
	cfg  Config
	stim Stimulus
	src  WindowSource
	det  *quadrature.Detector
	sink RowSink

	log    *zap.Logger
	wait   func(ctx context.Context, d time.Duration) error
	onStep func(ok bool)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithStepHook is told whether each step produced a row (metrics).
func WithStepHook(fn func(ok bool)) Option {
	return func(c *Controller) { c.onStep = fn }
}

// withWait replaces the settle timer in tests.
func withWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.wait = fn }
}

// NewController wires a sweep over src analysed by det.
func NewController(cfg Config, stim Stimulus, src WindowSource, det *quadrature.Detector, sink RowSink, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		stim:   stim,
		src:    src,
		det:    det,
		sink:   sink,
		log:    zap.NewNop(),
		wait:   sleepCtx,
		onStep: func(bool) {},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes every step in order. A step whose Apply fails or whose window
// is not full is logged and skipped without retry. Run returns ctx's error
// if cancelled, or the sink's error if a row cannot be written.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	steps := Steps(c.cfg.Start, c.cfg.Stop, c.cfg.Step)
	c.log.Info("sweep started",
		zap.Float64("freq_hz", c.cfg.FreqHz),
		zap.Int("steps", len(steps)),
		zap.Int("channel", c.cfg.Channel))

	for i, amp := range steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		row, err := c.step(ctx, amp)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Skipped++
			c.onStep(false)
			c.log.Warn("sweep step skipped", zap.Int("step", i), zap.Float64("amp_set", amp), zap.Error(err))
			continue
		}
		if err := c.sink.WriteRow(row); err != nil {
			return sum, fmt.Errorf("write sweep row: %w", err)
		}
		sum.Rows++
		c.onStep(true)
		c.log.Debug("sweep step",
			zap.Float64("amp_set", row.AmpSet),
			zap.Float64("qd_amp", row.QDAmp),
			zap.Float64("max_amp", row.MaxAmp))
	}
	c.log.Info("sweep finished", zap.Int("rows", sum.Rows), zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func (c *Controller) step(ctx context.Context, amp float64) (Row, error) {
	if err := c.stim.Apply(ctx, c.cfg.FreqHz, amp); err != nil {
		return Row{}, fmt.Errorf("apply stimulus: %w", err)
	}
	if err := c.wait(ctx, c.cfg.Window+c.cfg.Settle); err != nil {
		return Row{}, err
	}
	window := c.src.Window(c.cfg.Channel)
	if len(window) != c.det.Reference().Len() {
		return Row{}, fmt.Errorf("%w: %d of %d samples", ErrWindowNotFull, len(window), c.det.Reference().Len())
	}
	res, peak, err := c.det.Window(window)
	if err != nil {
		return Row{}, err
	}
	return Row{Freq: c.cfg.FreqHz, AmpSet: amp, QDAmp: res.Amplitude, MaxAmp: peak}, nil
}
