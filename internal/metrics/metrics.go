// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// StreamMetrics counts stream health on the host. It satisfies
// frame.Observer, so the decoder reports into it directly.
type StreamMetrics struct {
	Frames      prometheus.Counter
	Desyncs     prometheus.Counter
	Gaps        prometheus.Counter
	Missing     prometheus.Counter
	Bytes       prometheus.Counter
	Evictions   prometheus.Counter
	Recorded    prometheus.Counter
	Detections  prometheus.Counter
	LastSeq     prometheus.Gauge
	Amplitude   *prometheus.GaugeVec   // labels: sensor
	SweepSteps  *prometheus.CounterVec // labels: result=ok|skipped
	TickOverrun prometheus.Counter
}

// NewStreamMetrics registers and returns the stream metrics.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_frames_total",
			Help: "Frames accepted by the decoder.",
		}),
		Desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_desync_total",
			Help: "Candidate frames rejected on checksum or footer.",
		}),
		Gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_sequence_gaps_total",
			Help: "Sequence discontinuities observed.",
		}),
		Missing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_missing_frames_total",
			Help: "Frames lost according to the sequence counter.",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_stream_bytes_total",
			Help: "Bytes read from the serial link.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_ring_evictions_total",
			Help: "Samples evicted from full analysis windows.",
		}),
		Recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_recorded_samples_total",
			Help: "Samples appended to the recording buffer.",
		}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_quadrature_evaluations_total",
			Help: "Quadrature detector evaluations.",
		}),
		LastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibench_last_sequence",
			Help: "Sequence number of the last accepted frame.",
		}),
		Amplitude: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vibench_quadrature_amplitude",
			Help: "Latest quadrature amplitude per sensor.",
		}, []string{"sensor"}),
		SweepSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibench_sweep_steps_total",
			Help: "Sweep steps by result.",
		}, []string{"result"}),
		TickOverrun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibench_tick_overruns_total",
			Help: "Acquisition ticks that took longer than the period.",
		}),
	}
	reg.MustRegister(m.Frames, m.Desyncs, m.Gaps, m.Missing, m.Bytes, m.Evictions,
		m.Recorded, m.Detections, m.LastSeq, m.Amplitude, m.SweepSteps, m.TickOverrun)
	return m
}

func (m *StreamMetrics) FrameAccepted(seq uint16) {
	m.Frames.Inc()
	m.LastSeq.Set(float64(seq))
}

func (m *StreamMetrics) Desync() { m.Desyncs.Inc() }

func (m *StreamMetrics) Gap(missing int) {
	m.Gaps.Inc()
	m.Missing.Add(float64(missing))
}

func (m *StreamMetrics) SamplesEvicted(n int)  { m.Evictions.Add(float64(n)) }
func (m *StreamMetrics) SamplesRecorded(n int) { m.Recorded.Add(float64(n)) }

// BytesRead counts n bytes taken off the link.
func (m *StreamMetrics) BytesRead(n int) { m.Bytes.Add(float64(n)) }
