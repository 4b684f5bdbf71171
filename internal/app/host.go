// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/link"
	"github.com/relabs-tech/vibration_bench/internal/metrics"
	"github.com/relabs-tech/vibration_bench/internal/quadrature"
	"github.com/relabs-tech/vibration_bench/internal/store"
	"github.com/relabs-tech/vibration_bench/internal/stimulus"
)

// pipeline is the host side shared by RunHost and RunSweep: link, decoder,
// store, detector and the live outputs.
type pipeline struct {
	cfg    *config.Config
	stream config.Stream
	log    *zap.Logger

	link    *link.Link
	dec     *frame.Decoder
	store   *store.Store
	det     *quadrature.Detector
	reg     *prometheus.Registry
	metrics *metrics.StreamMetrics
	live    *Live
	hub     *Hub

	windows chan uint16
	resyncs chan struct{}
	mqtt    stimulus.Publisher // nil when telemetry is off
}

func newPipeline(cfg *config.Config, l *link.Link, log *zap.Logger) (*pipeline, error) {
	stream := cfg.Stream()
	p := &pipeline{
		cfg:     cfg,
		stream:  stream,
		log:     log,
		link:    l,
		reg:     metrics.NewRegistry(),
		windows: make(chan uint16, 1),
		resyncs: make(chan struct{}, 1),
	}
	p.metrics = metrics.NewStreamMetrics(p.reg)

	ref, err := quadrature.NewReference(stream.StimulusHz, stream.SampleRateHz, stream.Window)
	if err != nil {
		return nil, err
	}
	p.det = quadrature.NewDetector(ref, stream.Axis)

	p.store = store.New(stream.SensorCount, stream.Window,
		store.WithObserver(p.metrics),
		store.WithOnWindow(stream.Channel, p.windowFull))

	decOpts := []frame.Option{
		frame.WithObserver(p.metrics),
		frame.WithLogger(log.Named("decoder")),
	}
	if cfg.ResyncAfter > 0 {
		decOpts = append(decOpts, frame.WithResyncHook(cfg.ResyncAfter, p.resync))
	}
	p.dec, err = frame.NewDecoder(stream.SensorCount, stream.Scale, p.store, decOpts...)
	if err != nil {
		return nil, err
	}

	p.live = NewLive(stream.Channel, p.dec.Stats, func() bool {
		on, _ := p.store.Recording()
		return on
	})
	p.hub = NewHub(log.Named("web"))
	return p, nil
}

// windowFull runs on the decode goroutine and must not block.
func (p *pipeline) windowFull(seq uint16) {
	select {
	case p.windows <- seq:
	default:
	}
}

// resync runs on the decode goroutine; the serial writes happen in
// resyncLoop.
func (p *pipeline) resync() {
	select {
	case p.resyncs <- struct{}{}:
	default:
	}
}

// resyncLoop sends stop then start for each requested resync.
func (p *pipeline) resyncLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.resyncs:
			if err := p.link.Resync(); err != nil {
				p.log.Warn("resync failed", zap.Error(err))
			}
		}
	}
}

// detect evaluates every sensor's window and publishes the readings.
func (p *pipeline) detect(seq uint16) {
	now := time.Now()
	for sensor, w := range p.store.Windows() {
		res, peak, err := p.det.Window(w)
		if err != nil {
			continue
		}
		r := Reading{Sensor: sensor, QDAmp: res.Amplitude, Phase: res.Phase, MaxAmp: peak, Seq: seq, At: now}
		p.live.Update(r)
		p.metrics.Detections.Inc()
		p.metrics.Amplitude.WithLabelValues(strconv.Itoa(sensor)).Set(res.Amplitude)
		p.publishReading(r)
	}
}

func (p *pipeline) publishReading(r Reading) {
	if p.mqtt == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/%d", p.cfg.TopicAmplitude, r.Sensor)
	// fire and forget; the detector never waits on the broker
	p.mqtt.Publish(topic, 0, false, payload)
}

// countingReader reports bytes read to the metrics.
type countingReader struct {
	r io.Reader
	m *metrics.StreamMetrics
}

func (c countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.m.BytesRead(n)
	}
	return n, err
}

// start launches the decode, detect, display and web tasks on g.
func (p *pipeline) start(ctx context.Context, g *errgroup.Group, panel *Panel) {
	g.Go(func() error {
		err := p.dec.Run(ctx, countingReader{r: p.link.Reader(), m: p.metrics})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	})

	g.Go(func() error { return p.resyncLoop(ctx) })

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case seq := <-p.windows:
				p.detect(seq)
			}
		}
	})

	g.Go(func() error {
		t := time.NewTicker(p.cfg.DisplayInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				snap := p.live.Snapshot()
				p.hub.Broadcast(snap)
				if panel != nil {
					on, _ := p.store.Recording()
					if err := panel.Show(snap, on); err != nil {
						p.log.Debug("display update error", zap.Error(err))
					}
				}
			}
		}
	})

	if p.cfg.WebAddr != "" {
		var reg *prometheus.Registry
		if p.cfg.MetricsEnabled {
			reg = p.reg
		}
		mux := newMux(p.live, p.hub, reg, p.cfg.MetricsPath, p.log)
		g.Go(func() error { return serveHTTP(ctx, p.cfg.WebAddr, mux, p.log) })
	}
}

// openHost opens the serial link, the optional telemetry client and the
// optional panel. The returned cleanup closes whatever was opened.
func openHost(cfg *config.Config, log *zap.Logger) (*pipeline, *Panel, func(), error) {
	l, err := link.Open(cfg.SerialPort, cfg.SerialBaud, log.Named("link"))
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := newPipeline(cfg, l, log)
	if err != nil {
		l.Close()
		return nil, nil, nil, err
	}

	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		client, err = connectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, log.Named("mqtt"))
		if err != nil {
			log.Warn("amplitude telemetry disabled", zap.Error(err))
			client = nil
		} else {
			p.mqtt = client
		}
	}

	var panel *Panel
	if cfg.DisplayEnabled {
		panel, err = OpenPanel(cfg.DisplayI2CBus)
		if err != nil {
			log.Warn("display disabled", zap.Error(err))
			panel = nil
		}
	}

	cleanup := func() {
		if panel != nil {
			panel.Close()
		}
		if client != nil {
			client.Disconnect(250)
		}
		l.Close()
	}
	return p, panel, cleanup, nil
}

// RunHost streams from the device, keeps the live view current and takes
// single-key commands from in until q or ctx is done.
func RunHost(ctx context.Context, cfg *config.Config, in io.Reader, log *zap.Logger) error {
	p, panel, cleanup, err := openHost(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	p.start(gctx, g, panel)

	cmds := newHostCommands(p.link, p.store, cfg, log)
	g.Go(func() error {
		defer cancel()
		return cmds.Run(gctx, in)
	})

	// closing the link releases the blocked serial read
	go func() {
		<-gctx.Done()
		p.link.Close()
	}()

	log.Info("host running",
		zap.Int("sensors", p.stream.SensorCount),
		zap.Int("window", p.stream.Window),
		zap.Int("channel", p.stream.Channel),
		zap.Stringer("axis", p.stream.Axis))
	return g.Wait()
}
