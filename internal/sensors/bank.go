// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// Device is one accelerometer.
type Device interface {
	ReadRaw() (imu.Raw, error)
}

// Bank is the ordered set of devices read on every acquisition tick.
type Bank struct {
	devs    []Device
	closers []io.Closer
}

// NewBank groups devices; index i of ReadRaw is devs[i].
func NewBank(devs ...Device) *Bank {
	return &Bank{devs: devs}
}

// ReadRaw implements imu.Reader.
func (b *Bank) ReadRaw(index int) (imu.Raw, error) {
	if index < 0 || index >= len(b.devs) {
		return imu.Raw{}, fmt.Errorf("sensor index %d out of range (%d sensors)", index, len(b.devs))
	}
	return b.devs[index].ReadRaw()
}

// Len returns the number of devices.
func (b *Bank) Len() int { return len(b.devs) }

// Close releases every owned SPI port.
func (b *Bank) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// BankConfig selects and places the hardware sensors.
type BankConfig struct {
	Driver     string // lsm6ds3 or mpu9250
	SPIDevices []string
	CSPins     []string
	FullScaleG float64
}

// lsmClock is within the LSM6DS3's 10 MHz SPI limit.
const lsmClock = 8 * physic.MegaHertz

// OpenBank initializes every configured sensor in index order. On failure
// the ports opened so far are closed.
func OpenBank(cfg BankConfig, log *zap.Logger) (*Bank, error) {
	if len(cfg.SPIDevices) != len(cfg.CSPins) {
		return nil, fmt.Errorf("%d SPI devices but %d CS pins", len(cfg.SPIDevices), len(cfg.CSPins))
	}
	b := &Bank{}
	for i, dev := range cfg.SPIDevices {
		name := fmt.Sprintf("sensor%d", i)
		switch cfg.Driver {
		case "lsm6ds3":
			bus, err := OpenSPI(dev, cfg.CSPins[i], lsmClock, spi.Mode3)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			b.closers = append(b.closers, bus)
			d, err := NewLSM6DS3(name, bus, cfg.FullScaleG)
			if err != nil {
				b.Close()
				return nil, err
			}
			log.Info("accelerometer ready",
				zap.String("sensor", name),
				zap.String("driver", "lsm6ds3"),
				zap.String("spi", dev),
				zap.String("cs", cfg.CSPins[i]))
			b.devs = append(b.devs, d)
		case "mpu9250":
			d, err := NewMPU9250(name, dev, cfg.CSPins[i], cfg.FullScaleG, log)
			if err != nil {
				b.Close()
				return nil, err
			}
			b.devs = append(b.devs, d)
		default:
			return nil, fmt.Errorf("unknown sensor driver %q", cfg.Driver)
		}
	}
	return b, nil
}
