// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/recorder"
	"github.com/relabs-tech/vibration_bench/internal/sensors"
	"github.com/relabs-tech/vibration_bench/internal/stimulus"
	"github.com/relabs-tech/vibration_bench/internal/sweep"
)

// dacClock is within the LTC1660's 10 MHz limit.
const dacClock = 1 * physic.MegaHertz

// openStimulus builds the shaker control named by cfg.StimulusKind. pub is
// the telemetry client and may be nil.
func openStimulus(cfg *config.Config, pub stimulus.Publisher, log *zap.Logger) (sweep.Stimulus, func(), error) {
	switch cfg.StimulusKind {
	case "none":
		return stimulus.NewRecorder(log), func() {}, nil
	case "mqtt":
		if pub == nil {
			return nil, nil, errors.New("stimulus over MQTT needs a broker connection")
		}
		return stimulus.NewMQTT(pub, cfg.TopicStimulus), func() {}, nil
	case "dac":
		bus, err := sensors.OpenSPI(cfg.DACSPIDevice, cfg.DACCSPin, dacClock, spi.Mode0)
		if err != nil {
			return nil, nil, err
		}
		dac, err := stimulus.NewDAC(bus, cfg.DACChannel, cfg.DACVref)
		if err != nil {
			bus.Close()
			return nil, nil, err
		}
		if err := dac.Wake(); err != nil {
			bus.Close()
			return nil, nil, err
		}
		return dac, func() {
			if err := dac.ClearAll(); err != nil {
				log.Warn("DAC clear failed", zap.Error(err))
			}
			bus.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown stimulus kind %q", cfg.StimulusKind)
}

// RunSweep starts the stream, steps the stimulus amplitude from
// SweepStart to SweepStop and writes one qd row per step.
func RunSweep(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	p, panel, cleanup, err := openHost(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	stim, closeStim, err := openStimulus(cfg, p.mqtt, log.Named("stimulus"))
	if err != nil {
		return err
	}
	defer closeStim()

	path := recorder.Path(cfg.DataDir, cfg.BaseName, recorder.KindQD, time.Now())
	out, err := recorder.NewSweepWriter(path)
	if err != nil {
		return err
	}
	defer out.Close()

	ctrl := sweep.NewController(sweep.Config{
		FreqHz:  p.stream.StimulusHz,
		Start:   cfg.SweepStart,
		Stop:    cfg.SweepStop,
		Step:    cfg.SweepStep,
		Channel: p.stream.Channel,
		Window:  p.stream.WindowDuration(),
		Settle:  cfg.SweepSettle,
	}, stim, p.store, p.det, out,
		sweep.WithLogger(log.Named("sweep")),
		sweep.WithStepHook(func(ok bool) {
			if ok {
				p.metrics.SweepSteps.WithLabelValues("ok").Inc()
			} else {
				p.metrics.SweepSteps.WithLabelValues("skipped").Inc()
			}
		}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	p.start(gctx, g, panel)
	go func() {
		<-gctx.Done()
		p.link.Close()
	}()

	if err := p.link.Send(frame.CmdStart); err != nil {
		cancel()
		g.Wait()
		return err
	}

	sum, runErr := ctrl.Run(gctx)
	if err := p.link.Send(frame.CmdStop); err != nil && gctx.Err() == nil {
		log.Warn("stop stream failed", zap.Error(err))
	}
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	log.Info("sweep saved", zap.String("path", out.Path()), zap.Int("rows", sum.Rows), zap.Int("skipped", sum.Skipped))
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
