// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/recorder"
	"github.com/relabs-tech/vibration_bench/internal/store"
)

// commandSender is the part of link.Link the console needs.
type commandSender interface {
	Send(cmd frame.Command) error
}

// hostCommands maps operator keys to actions:
//
//	s  start streaming      e  stop streaming
//	r  start recording      o  stop recording and save
//	c  clear recording      q  quit
type hostCommands struct {
	dev     commandSender
	store   *store.Store
	channel int
	dataDir string
	base    string
	log     *zap.Logger
	now     func() time.Time
}

func newHostCommands(dev commandSender, st *store.Store, cfg *config.Config, log *zap.Logger) *hostCommands {
	return &hostCommands{
		dev:     dev,
		store:   st,
		channel: cfg.Channel,
		dataDir: cfg.DataDir,
		base:    cfg.BaseName,
		log:     log,
		now:     time.Now,
	}
}

// Handle executes one command line and reports whether to quit.
func (h *hostCommands) Handle(line string) (quit bool) {
	switch strings.TrimSpace(line) {
	case "s":
		if err := h.dev.Send(frame.CmdStart); err != nil {
			h.log.Warn("start failed", zap.Error(err))
		}
	case "e":
		if err := h.dev.Send(frame.CmdStop); err != nil {
			h.log.Warn("stop failed", zap.Error(err))
		}
	case "r":
		h.store.StartRecording(h.channel)
		h.log.Info("recording started", zap.Int("channel", h.channel))
	case "o":
		h.save()
	case "c":
		h.store.Clear()
		h.log.Info("recording cleared")
	case "q":
		return true
	case "":
	default:
		h.log.Info("unknown command", zap.String("cmd", line),
			zap.String("help", "s start, e stop, r record, o save, c clear, q quit"))
	}
	return false
}

func (h *hostCommands) save() {
	sess := h.store.StopRecording()
	path, err := recorder.SaveMeasurement(h.dataDir, h.base, sess, h.now())
	switch {
	case err != nil:
		h.log.Error("save recording failed", zap.Error(err))
	case path == "":
		h.log.Info("no data to save")
	default:
		h.log.Info("recording saved", zap.String("path", path), zap.Int("samples", len(sess.Samples)))
	}
}

// Run reads lines from in until q or ctx is done. At EOF it keeps
// waiting for ctx.
func (h *hostCommands) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// no console: keep running until ctx is done
				lines = nil
				continue
			}
			if h.Handle(line) {
				return nil
			}
		}
	}
}
