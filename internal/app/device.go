// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/vibration_bench/internal/acquisition"
	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/imu"
	"github.com/relabs-tech/vibration_bench/internal/link"
	"github.com/relabs-tech/vibration_bench/internal/metrics"
	"github.com/relabs-tech/vibration_bench/internal/sensors"
	"github.com/relabs-tech/vibration_bench/internal/stimulus"
)

// openReader returns the configured sensors. A synthetic bank is also
// returned as a stimulus target so it can follow the sweep.
func openReader(cfg *config.Config, log *zap.Logger) (imu.Reader, stimulus.Target, func(), error) {
	if cfg.DeviceDriver == "synthetic" {
		syn := sensors.NewSynthetic(cfg.SensorCount, cfg.FullScaleG, cfg.SampleRateHz, cfg.StimulusHz, cfg.SyntheticAmp)
		log.Info("using synthetic sensors", zap.Int("sensors", cfg.SensorCount), zap.Float64("amp_g", cfg.SyntheticAmp))
		return syn, syn, func() {}, nil
	}
	bank, err := sensors.OpenBank(sensors.BankConfig{
		Driver:     cfg.DeviceDriver,
		SPIDevices: cfg.DeviceSPIDevices,
		CSPins:     cfg.DeviceCSPins,
		FullScaleG: cfg.FullScaleG,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if bank.Len() != cfg.SensorCount {
		bank.Close()
		return nil, nil, nil, fmt.Errorf("%d sensors opened, sensor_count is %d", bank.Len(), cfg.SensorCount)
	}
	return bank, nil, func() { bank.Close() }, nil
}

// runDevice streams frames from reader to rw and applies commands read
// from rw until ctx is done.
func runDevice(ctx context.Context, sched *acquisition.Scheduler, rw io.ReadWriteCloser) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return sched.CommandLoop(gctx, rw) })
	go func() {
		<-gctx.Done()
		rw.Close()
	}()
	return g.Wait()
}

// RunDevice is the acquisition side: it samples every sensor at the
// configured rate and streams frames over DeviceSerialPort once the host
// sends start.
func RunDevice(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reader, target, closeReader, err := openReader(cfg, log.Named("sensors"))
	if err != nil {
		return err
	}
	defer closeReader()

	rw, err := link.OpenSerial(cfg.DeviceSerialPort, cfg.SerialBaud)
	if err != nil {
		return err
	}
	log.Info("device serial port opened", zap.String("port", cfg.DeviceSerialPort), zap.Int("baud", cfg.SerialBaud))

	enc, err := frame.NewEncoder(cfg.SensorCount)
	if err != nil {
		rw.Close()
		return err
	}
	reg := metrics.NewRegistry()
	m := metrics.NewStreamMetrics(reg)
	stream := cfg.Stream()
	sched, err := acquisition.NewScheduler(reader, enc, rw, stream.TickPeriod(),
		acquisition.WithSentinel(cfg.DeviceSentinel),
		acquisition.WithLogger(log.Named("acquisition")),
		acquisition.WithOverrunHook(func(d time.Duration) {
			m.TickOverrun.Inc()
			log.Debug("tick overrun", zap.Duration("took", d))
		}))
	if err != nil {
		rw.Close()
		return err
	}

	if cfg.MetricsEnabled && cfg.WebAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.MetricsPath, metrics.Handler(reg))
		go func() {
			if err := serveHTTP(ctx, cfg.WebAddr, mux, log.Named("web")); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// a synthetic bank follows the stimulus topic, closing the loop in
	// simulation
	if target != nil && cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-device", log.Named("mqtt"))
		if err != nil {
			log.Warn("synthetic stimulus disabled", zap.Error(err))
		} else {
			defer client.Disconnect(250)
			if err := stimulus.Listen(ctx, client, cfg.TopicStimulus, target, log.Named("stimulus")); err != nil {
				log.Warn("synthetic stimulus disabled", zap.Error(err))
			}
		}
	}

	err = runDevice(ctx, sched, rw)
	st := sched.Stats()
	log.Info("device stopped",
		zap.Uint64("frames", st.Frames),
		zap.Uint64("read_errors", st.ReadErrors),
		zap.Uint64("write_errors", st.WriteErrors),
		zap.Uint64("overruns", st.Overruns))
	return err
}
