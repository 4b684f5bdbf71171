// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package link is the serial connection between host and device.
package link

import (
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/frame"
)

// OpenSerial opens port at baud, 8N1, blocking until at least one byte is
// available on each read.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rw, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	return rw, nil
}

// Link sends commands to the device and exposes the frame stream. Writes
// are serialized so a command byte never interleaves with another.
type Link struct {
	mu  sync.Mutex
	rw  io.ReadWriteCloser
	log *zap.Logger
}

// New wraps an open transport.
func New(rw io.ReadWriteCloser, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{rw: rw, log: log}
}

// Open opens the serial port and wraps it.
func Open(port string, baud int, log *zap.Logger) (*Link, error) {
	rw, err := OpenSerial(port, baud)
	if err != nil {
		return nil, err
	}
	l := New(rw, log)
	l.log.Info("serial link opened", zap.String("port", port), zap.Int("baud", baud))
	return l, nil
}

// Send writes one command byte.
func (l *Link) Send(cmd frame.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.rw.Write([]byte{cmd.Byte()}); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	l.log.Debug("command sent", zap.Stringer("cmd", cmd))
	return nil
}

// Resync stops and restarts the stream.
func (l *Link) Resync() error {
	l.log.Warn("resyncing stream")
	if err := l.Send(frame.CmdStop); err != nil {
		return err
	}
	return l.Send(frame.CmdStart)
}

// Reader is the incoming byte stream.
func (l *Link) Reader() io.Reader { return l.rw }

// Close closes the transport, unblocking a pending read.
func (l *Link) Close() error { return l.rw.Close() }
