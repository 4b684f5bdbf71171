// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps the most recent analysis window per sensor and the
// optional recording buffer, shared between the decode task (single
// writer) and the display, detector and recording consumers.
package store

import (
	"sync"
	"time"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// Recorded is one sample captured while recording, stamped on arrival.
type Recorded struct {
	Timestamp time.Time
	Sample    imu.Sample
}

// Session is a finished recording: the captured channel, when capture
// started and the samples in arrival order.
type Session struct {
	Channel   int
	StartedAt time.Time
	Samples   []Recorded
}

// AllSensors makes StartRecording capture every sensor.
const AllSensors = -1

// Observer receives eviction and recording counts. Calls happen under the
// store lock and must not block.
type Observer interface {
	SamplesEvicted(n int)
	SamplesRecorded(n int)
}

type nopObserver struct{}

func (nopObserver) SamplesEvicted(int)  {}
func (nopObserver) SamplesRecorded(int) {}

// Store holds one Ring per sensor behind a single RWMutex. A whole set is
// appended under one lock acquisition, so readers never see a partial set.
type Store struct {
	mu     sync.RWMutex
	rings  []*Ring
	window int

	recording  bool
	recChannel int
	recStart   time.Time
	rec        []Recorded
	lastStamp  time.Time

	sinceWindow int
	windowCh    int
	onWindow    func(seq uint16)

	now func() time.Time
	obs Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for recording timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver reports evictions and recorded samples (metrics).
func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// WithOnWindow calls fn, outside the lock, every time channel's ring is
// full and window new sets have arrived since the previous call, i.e. once
// per non-overlapping window.
func WithOnWindow(channel int, fn func(seq uint16)) Option {
	return func(s *Store) {
		s.windowCh = channel
		s.onWindow = fn
	}
}

// New creates a store for sensors rings of window samples each.
func New(sensors, window int, opts ...Option) *Store {
	s := &Store{
		rings:  make([]*Ring, sensors),
		window: window,
		now:    time.Now,
		obs:    nopObserver{},
	}
	for i := range s.rings {
		s.rings[i] = NewRing(window)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sensors returns the number of rings.
func (s *Store) Sensors() int { return len(s.rings) }

// WindowLen returns the ring capacity W.
func (s *Store) WindowLen() int { return s.window }

// Append adds one validated set. It never waits on consumers beyond the
// short critical section. Samples beyond the configured sensor count are
// ignored.
func (s *Store) Append(set imu.Set) {
	fire := false

	s.mu.Lock()
	evicted := 0
	for i, smp := range set.Samples {
		if i >= len(s.rings) {
			break
		}
		if s.rings[i].Push(smp) {
			evicted++
		}
	}
	if evicted > 0 {
		s.obs.SamplesEvicted(evicted)
	}

	if s.recording {
		ts := s.now()
		if ts.Before(s.lastStamp) {
			ts = s.lastStamp
		}
		s.lastStamp = ts
		n := 0
		for i, smp := range set.Samples {
			if i >= len(s.rings) {
				break
			}
			if s.recChannel == AllSensors || s.recChannel == i {
				s.rec = append(s.rec, Recorded{Timestamp: ts, Sample: smp})
				n++
			}
		}
		if n > 0 {
			s.obs.SamplesRecorded(n)
		}
	}

	if s.onWindow != nil && s.windowCh >= 0 && s.windowCh < len(s.rings) {
		s.sinceWindow++
		if s.rings[s.windowCh].Full() && s.sinceWindow >= s.window {
			s.sinceWindow = 0
			fire = true
		}
	}
	s.mu.Unlock()

	if fire {
		s.onWindow(set.Seq)
	}
}

// Window returns an ordered copy of sensor's ring, oldest first. Later
// appends never alter a returned snapshot.
func (s *Store) Window(sensor int) []imu.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sensor < 0 || sensor >= len(s.rings) {
		return nil
	}
	return s.rings[sensor].Snapshot()
}

// Windows snapshots every ring under one lock, so all sensors cover the
// same frames.
func (s *Store) Windows() [][]imu.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]imu.Sample, len(s.rings))
	for i, r := range s.rings {
		out[i] = r.Snapshot()
	}
	return out
}

// Full reports whether sensor's ring holds W samples.
func (s *Store) Full(sensor int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sensor < 0 || sensor >= len(s.rings) {
		return false
	}
	return s.rings[sensor].Full()
}

// Clear empties every ring and the recording buffer. An active recording
// stays active.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rings {
		r.Reset()
	}
	s.rec = nil
	s.sinceWindow = 0
}

// StartRecording discards any previous recording and captures channel
// (or AllSensors) from the next appended set on.
func (s *Store) StartRecording(channel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	s.recChannel = channel
	s.recStart = s.now()
	s.recording = true
}

// StopRecording ends the recording and hands back its samples in arrival
// order. The store keeps nothing afterwards. Stopping while idle returns an
// empty session.
func (s *Store) StopRecording() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return Session{Channel: s.recChannel}
	}
	out := Session{Channel: s.recChannel, StartedAt: s.recStart, Samples: s.rec}
	s.rec = nil
	s.recording = false
	return out
}

// Recording reports whether samples are being captured and how many so far.
func (s *Store) Recording() (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording, len(s.rec)
}
