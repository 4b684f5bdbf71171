// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

var mpuAccelRange = map[float64]byte{2: 0, 4: 1, 8: 2, 16: 3}

// MPU9250 is the alternative accelerometer backend built on the periph
// mpu9250 driver.
type MPU9250 struct {
	name string
	dev  *mpu9250.MPU9250
}

// NewMPU9250 initializes one MPU9250 on spiDev with chip select csPin.
func NewMPU9250(name, spiDev, csPin string, fullScaleG float64, log *zap.Logger) (*MPU9250, error) {
	rng, ok := mpuAccelRange[fullScaleG]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported full scale ±%vg", name, fullScaleG)
	}
	if err := InitHost(); err != nil {
		return nil, err
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s: CS pin %q not found", name, csPin)
	}
	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s: SPI transport (%s): %w", name, spiDev, err)
	}
	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s: device creation: %w", name, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s: initialization: %w", name, err)
	}
	if err := dev.SetAccelRange(rng); err != nil {
		return nil, fmt.Errorf("%s: set accel range: %w", name, err)
	}
	log.Info("accelerometer ready",
		zap.String("sensor", name),
		zap.String("driver", "mpu9250"),
		zap.Float64("full_scale_g", fullScaleG))
	return &MPU9250{name: name, dev: dev}, nil
}

// ReadRaw reads the three accelerometer axes.
func (m *MPU9250) ReadRaw() (imu.Raw, error) {
	ax, err := m.dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel X: %w", m.name, err)
	}
	ay, err := m.dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel Y: %w", m.name, err)
	}
	az, err := m.dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("%s accel Z: %w", m.name, err)
	}
	return imu.Raw{Ax: ax, Ay: ay, Az: az}, nil
}

func (m *MPU9250) String() string { return m.name }
