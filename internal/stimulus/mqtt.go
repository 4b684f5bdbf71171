// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stimulus implements the shaker-side collaborators of a sweep:
// a remote controller reached over MQTT, a local LTC1660 DAC and a
// recording double.
package stimulus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Setting is the stimulus command carried on the MQTT topic.
type Setting struct {
	FreqHz    float64 `json:"freq_hz"`
	Amplitude float64 `json:"amplitude"`
}

// Publisher is the part of mqtt.Client used to send settings.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the part of mqtt.Client used to receive settings.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTT publishes each setting as retained JSON, so a controller that
// reconnects picks up the current one.
type MQTT struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewMQTT sends settings to topic through client.
func NewMQTT(client Publisher, topic string) *MQTT {
	return &MQTT{client: client, topic: topic, timeout: 5 * time.Second}
}

// Apply publishes the setting and waits for the broker to accept it.
func (m *MQTT) Apply(ctx context.Context, freqHz, amplitude float64) error {
	payload, err := json.Marshal(Setting{FreqHz: freqHz, Amplitude: amplitude})
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("publish %s: timeout after %s", m.topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Target is anything that can take a setting, e.g. a DAC or the synthetic
// sensor bank.
type Target interface {
	Apply(ctx context.Context, freqHz, amplitude float64) error
}

// Listen forwards every setting received on topic to target. Malformed
// payloads are logged and dropped.
func Listen(ctx context.Context, client Subscriber, topic string, target Target, log *zap.Logger) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var s Setting
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn("stimulus payload unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		if err := target.Apply(ctx, s.FreqHz, s.Amplitude); err != nil {
			log.Warn("stimulus apply failed", zap.Float64("amplitude", s.Amplitude), zap.Error(err))
			return
		}
		log.Debug("stimulus applied", zap.Float64("freq_hz", s.FreqHz), zap.Float64("amplitude", s.Amplitude))
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Info("listening for stimulus settings", zap.String("topic", topic))
	return nil
}
