// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Bus is a full-duplex register transport: one chip-select-framed
// transaction per call, like spi.Conn.Tx.
type Bus interface {
	Tx(w, r []byte) error
}

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost loads the periph host drivers once per process.
func InitHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("periph host init: %w", err)
		}
	})
	return hostErr
}

// SPIDevice is an SPI port with a GPIO chip select driven around every
// transaction, for boards where several sensors share one controller.
type SPIDevice struct {
	name string
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinOut
}

// OpenSPI opens dev (e.g. /dev/spidev0.0) at hz in the given mode. csPin
// may be empty when the controller's native chip select is used.
func OpenSPI(dev, csPin string, hz physic.Frequency, mode spi.Mode) (*SPIDevice, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("SPI open %s: %w", dev, err)
	}
	conn, err := port.Connect(hz, mode, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("SPI connect %s: %w", dev, err)
	}
	d := &SPIDevice{name: dev, port: port, conn: conn}
	if csPin != "" {
		pin := gpioreg.ByName(csPin)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("CS pin %q not found", csPin)
		}
		if err := pin.Out(gpio.High); err != nil {
			port.Close()
			return nil, fmt.Errorf("CS pin %s: %w", csPin, err)
		}
		d.cs = pin
	}
	return d, nil
}

// Tx runs one transaction with chip select held low.
func (d *SPIDevice) Tx(w, r []byte) error {
	if d.cs != nil {
		if err := d.cs.Out(gpio.Low); err != nil {
			return err
		}
		defer d.cs.Out(gpio.High)
	}
	return d.conn.Tx(w, r)
}

func (d *SPIDevice) String() string { return d.name }

// Close releases the port.
func (d *SPIDevice) Close() error {
	return d.port.Close()
}
