package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vibench_config.txt")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.SensorCount)
	assert.Equal(t, 460800, cfg.SerialBaud)
	assert.Equal(t, 66*time.Millisecond, cfg.DisplayInterval)

	s := cfg.Stream()
	assert.Equal(t, 237, s.Window)
	assert.Equal(t, imu.AxisZ, s.Axis)
	assert.Equal(t, imu.UnitsMS2, s.Scale.Units)
	assert.InDelta(t, 237.0/1660.0, s.WindowDuration().Seconds(), 1e-6)
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
# two sensors on a short window
SENSOR_COUNT=2
FULL_SCALE_G=4
UNITS=g
WINDOW_LEN=166
CHANNEL=1
AXIS=x
DEVICE_DRIVER=lsm6ds3
DEVICE_SPI_DEVICES=/dev/spidev0.0, /dev/spidev0.1
DEVICE_CS_PINS=GPIO5,GPIO6
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.SensorCount)
	assert.Equal(t, []string{"/dev/spidev0.0", "/dev/spidev0.1"}, cfg.DeviceSPIDevices)
	assert.Equal(t, []string{"GPIO5", "GPIO6"}, cfg.DeviceCSPins)

	s := cfg.Stream()
	assert.Equal(t, 166, s.Window)
	assert.Equal(t, 1, s.Channel)
	assert.Equal(t, imu.AxisX, s.Axis)
	assert.Equal(t, 4.0, s.Scale.FullScaleG)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VIBENCH_SENSOR_COUNT", "3")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.SensorCount)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "SENSOR_CONT=2\n",
		"bad full scale":   "FULL_SCALE_G=3\n",
		"channel range":    "SENSOR_COUNT=2\nCHANNEL=2\n",
		"negative channel": "CHANNEL=-1\n",
		"nyquist":          "STIMULUS_HZ=900\n",
		"spi list missing": "SENSOR_COUNT=2\nDEVICE_DRIVER=lsm6ds3\n",
		"bad stimulus":     "STIMULUS_KIND=laser\n",
		"empty sweep":      "SWEEP_START=1\nSWEEP_STOP=0\n",
		"display interval": "DISPLAY_INTERVAL_MS=0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
