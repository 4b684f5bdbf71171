// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/relabs-tech/vibration_bench/internal/imu"
)

// EnvPrefix is prepended to keys for environment overrides, e.g.
// VIBENCH_SERIAL_PORT=/dev/ttyUSB1.
const EnvPrefix = "VIBENCH"

// Config holds all application configuration values.
type Config struct {
	// Serial link
	SerialPort string
	SerialBaud int

	// Stream (shared by both ends, never negotiated)
	SensorCount    int
	FullScaleG     float64
	SampleRateHz   float64
	StimulusHz     float64
	StimulusCycles float64
	WindowLen      int // 0 = derive from rate, frequency and cycles
	Units          imu.Units
	Channel        int    // sensor analysed and recorded
	Axis           string // x, y or z

	// Host
	ResyncAfter     int // consecutive rejects before stop/start; 0 disables
	DisplayInterval time.Duration

	// Device side
	DeviceDriver     string // synthetic, lsm6ds3, mpu9250
	DeviceSPIDevices []string
	DeviceCSPins     []string
	DeviceSerialPort string
	DeviceSentinel   bool
	SyntheticAmp     float64

	// Sweep
	SweepStart  float64
	SweepStop   float64
	SweepStep   float64
	SweepSettle time.Duration

	// Recording
	DataDir  string
	BaseName string

	// Stimulus
	StimulusKind string // none, mqtt, dac
	DACSPIDevice string
	DACCSPin     string
	DACVref      float64
	DACChannel   int

	// MQTT
	MQTTBroker     string
	MQTTClientID   string
	TopicAmplitude string
	TopicStimulus  string

	// Web / metrics
	WebAddr        string
	MetricsEnabled bool
	MetricsPath    string

	// OLED panel
	DisplayEnabled bool
	DisplayI2CBus  string

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// Stream is the immutable stream description threaded into the encoder,
// decoder, store and detector.
type Stream struct {
	SensorCount  int
	Scale        imu.Scale
	SampleRateHz float64
	StimulusHz   float64
	Window       int
	Channel      int
	Axis         imu.Axis
}

// WindowDuration is the time one analysis window spans.
func (s Stream) WindowDuration() time.Duration {
	return time.Duration(float64(s.Window) / s.SampleRateHz * float64(time.Second))
}

// TickPeriod is the acquisition timer period.
func (s Stream) TickPeriod() time.Duration {
	return time.Duration(float64(time.Second) / s.SampleRateHz)
}

// Package-level singleton used by cmd/: InitGlobal sets it once, Get reads it.
// Library packages take explicit values instead.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults is the full key table; a file key not listed here is a typo.
var defaults = map[string]any{
	"serial_port":         "/dev/ttyUSB0",
	"serial_baud":         460800,
	"sensor_count":        7,
	"full_scale_g":        16.0,
	"sample_rate_hz":      1660.0,
	"stimulus_hz":         70.0,
	"stimulus_cycles":     10.0,
	"window_len":          0,
	"units":               string(imu.UnitsMS2),
	"channel":             0,
	"axis":                "z",
	"resync_after":        50,
	"display_interval_ms": 66,
	"device_driver":       "synthetic",
	"device_spi_devices":  "",
	"device_cs_pins":      "",
	"device_serial_port":  "/dev/ttyGS0",
	"device_sentinel":     false,
	"synthetic_amp":       1.0,
	"sweep_start":         0.0,
	"sweep_stop":          1.0,
	"sweep_step":          0.01,
	"sweep_settle_ms":     200,
	"data_dir":            "./data",
	"base_name":           "sample",
	"stimulus_kind":       "none",
	"dac_spi_device":      "/dev/spidev0.1",
	"dac_cs_pin":          "GPIO8",
	"dac_vref":            2.5,
	"dac_channel":         1,
	"mqtt_broker":         "tcp://localhost:1883",
	"mqtt_client_id":      "vibench-host",
	"topic_amplitude":     "vibench/amplitude",
	"topic_stimulus":      "vibench/stimulus",
	"web_addr":            ":8080",
	"metrics_enabled":     true,
	"metrics_path":        "/metrics",
	"display_enabled":     false,
	"display_i2c_bus":     "",
	"log_level":           "info",
	"log_format":          "console",
	"log_file":            "logs/vibench.log",
	"log_max_size_mb":     50,
	"log_max_backups":     5,
	"log_max_age_days":    14,
	"log_compress":        true,
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads a KEY=VALUE configuration file ('#' comments allowed) and
// applies environment overrides. An empty path uses defaults and env only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := checkKeys(v); err != nil {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkKeys(v *viper.Viper) error {
	var unknown []string
	for _, k := range v.AllKeys() {
		if _, ok := defaults[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown config key(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fromViper(v *viper.Viper) *Config {
	ms := func(key string) time.Duration { return time.Duration(v.GetInt(key)) * time.Millisecond }

	return &Config{
		SerialPort: v.GetString("serial_port"),
		SerialBaud: v.GetInt("serial_baud"),

		SensorCount:    v.GetInt("sensor_count"),
		FullScaleG:     v.GetFloat64("full_scale_g"),
		SampleRateHz:   v.GetFloat64("sample_rate_hz"),
		StimulusHz:     v.GetFloat64("stimulus_hz"),
		StimulusCycles: v.GetFloat64("stimulus_cycles"),
		WindowLen:      v.GetInt("window_len"),
		Units:          imu.Units(v.GetString("units")),
		Channel:        v.GetInt("channel"),
		Axis:           v.GetString("axis"),

		ResyncAfter:     v.GetInt("resync_after"),
		DisplayInterval: ms("display_interval_ms"),

		DeviceDriver:     v.GetString("device_driver"),
		DeviceSPIDevices: splitList(v.GetString("device_spi_devices")),
		DeviceCSPins:     splitList(v.GetString("device_cs_pins")),
		DeviceSerialPort: v.GetString("device_serial_port"),
		DeviceSentinel:   v.GetBool("device_sentinel"),
		SyntheticAmp:     v.GetFloat64("synthetic_amp"),

		SweepStart:  v.GetFloat64("sweep_start"),
		SweepStop:   v.GetFloat64("sweep_stop"),
		SweepStep:   v.GetFloat64("sweep_step"),
		SweepSettle: ms("sweep_settle_ms"),

		DataDir:  v.GetString("data_dir"),
		BaseName: v.GetString("base_name"),

		StimulusKind: v.GetString("stimulus_kind"),
		DACSPIDevice: v.GetString("dac_spi_device"),
		DACCSPin:     v.GetString("dac_cs_pin"),
		DACVref:      v.GetFloat64("dac_vref"),
		DACChannel:   v.GetInt("dac_channel"),

		MQTTBroker:     v.GetString("mqtt_broker"),
		MQTTClientID:   v.GetString("mqtt_client_id"),
		TopicAmplitude: v.GetString("topic_amplitude"),
		TopicStimulus:  v.GetString("topic_stimulus"),

		WebAddr:        v.GetString("web_addr"),
		MetricsEnabled: v.GetBool("metrics_enabled"),
		MetricsPath:    v.GetString("metrics_path"),

		DisplayEnabled: v.GetBool("display_enabled"),
		DisplayI2CBus:  v.GetString("display_i2c_bus"),

		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		LogFile:       v.GetString("log_file"),
		LogMaxSizeMB:  v.GetInt("log_max_size_mb"),
		LogMaxBackups: v.GetInt("log_max_backups"),
		LogMaxAgeDays: v.GetInt("log_max_age_days"),
		LogCompress:   v.GetBool("log_compress"),
	}
}

// validate checks ranges and cross-field constraints.
func (c *Config) validate() error {
	if c.SensorCount < 1 || c.SensorCount > 8 {
		return fmt.Errorf("SENSOR_COUNT must be 1-8, got %d", c.SensorCount)
	}
	if _, err := imu.NewScale(c.FullScaleG, c.Units); err != nil {
		return fmt.Errorf("FULL_SCALE_G/UNITS: %w", err)
	}
	if c.SampleRateHz <= 0 {
		return errors.New("SAMPLE_RATE_HZ must be positive")
	}
	if c.StimulusHz <= 0 || c.StimulusHz >= c.SampleRateHz/2 {
		return fmt.Errorf("STIMULUS_HZ must be in (0, %.1f), got %v", c.SampleRateHz/2, c.StimulusHz)
	}
	if c.WindowLen < 0 {
		return fmt.Errorf("WINDOW_LEN must be >= 0, got %d", c.WindowLen)
	}
	if c.WindowLen == 0 && c.StimulusCycles <= 0 {
		return errors.New("STIMULUS_CYCLES must be positive when WINDOW_LEN is derived")
	}
	if c.Channel < 0 || c.Channel >= c.SensorCount {
		return fmt.Errorf("CHANNEL must be 0-%d, got %d", c.SensorCount-1, c.Channel)
	}
	if c.SerialBaud <= 0 {
		return errors.New("SERIAL_BAUD is required")
	}
	if c.DisplayInterval <= 0 {
		return errors.New("DISPLAY_INTERVAL_MS must be positive")
	}
	if c.SweepStep <= 0 || c.SweepStop < c.SweepStart {
		return fmt.Errorf("sweep range %v..%v step %v is empty", c.SweepStart, c.SweepStop, c.SweepStep)
	}
	switch c.DeviceDriver {
	case "synthetic":
	case "lsm6ds3", "mpu9250":
		if len(c.DeviceSPIDevices) != c.SensorCount || len(c.DeviceCSPins) != c.SensorCount {
			return fmt.Errorf("DEVICE_SPI_DEVICES and DEVICE_CS_PINS need %d entries each", c.SensorCount)
		}
	default:
		return fmt.Errorf("unknown DEVICE_DRIVER %q", c.DeviceDriver)
	}
	switch c.StimulusKind {
	case "none", "mqtt", "dac":
	default:
		return fmt.Errorf("unknown STIMULUS_KIND %q", c.StimulusKind)
	}
	if c.Stream().Window < 1 {
		return errors.New("analysis window is empty")
	}
	return nil
}

// Stream derives the immutable stream description.
func (c *Config) Stream() Stream {
	w := c.WindowLen
	if w == 0 {
		// same truncation as the bench scripts: int(fs * cycles / f)
		w = int(math.Floor(c.SampleRateHz * c.StimulusCycles / c.StimulusHz))
	}
	scale, _ := imu.NewScale(c.FullScaleG, c.Units)
	return Stream{
		SensorCount:  c.SensorCount,
		Scale:        scale,
		SampleRateHz: c.SampleRateHz,
		StimulusHz:   c.StimulusHz,
		Window:       w,
		Channel:      c.Channel,
		Axis:         imu.ParseAxis(c.Axis),
	}
}

// InitGlobal initializes the global configuration from file, once.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration; nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
