// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stimulus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Recorder keeps every applied setting. It stands in for the shaker when
// STIMULUS_KIND=none and in tests.
type Recorder struct {
	mu       sync.Mutex
	settings []Setting
	log      *zap.Logger
}

// NewRecorder logs each setting at debug level when log is not nil.
func NewRecorder(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{log: log}
}

func (r *Recorder) Apply(_ context.Context, freqHz, amplitude float64) error {
	r.mu.Lock()
	r.settings = append(r.settings, Setting{FreqHz: freqHz, Amplitude: amplitude})
	r.mu.Unlock()
	r.log.Debug("stimulus setting", zap.Float64("freq_hz", freqHz), zap.Float64("amplitude", amplitude))
	return nil
}

// Settings returns a copy of what was applied, in order.
func (r *Recorder) Settings() []Setting {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Setting(nil), r.settings...)
}
