// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/stimulus"
)

func formatReading(r Reading) string {
	return fmt.Sprintf("[AMP %d] seq=%5d qd=%9.4f phase=%7.3f max=%9.4f",
		r.Sensor, r.Seq, r.QDAmp, r.Phase, r.MaxAmp)
}

func formatSetting(s stimulus.Setting) string {
	return fmt.Sprintf("[STIM ] freq=%.2fHz amplitude=%.2f", s.FreqHz, s.Amplitude)
}

// consolePrinter writes one line per message; handlers run on the MQTT
// client's goroutines, so writes are serialized.
type consolePrinter struct {
	mu  sync.Mutex
	out io.Writer
	log *zap.Logger
}

func (c *consolePrinter) println(s string) {
	c.mu.Lock()
	fmt.Fprintln(c.out, s)
	c.mu.Unlock()
}

func (c *consolePrinter) amplitude(_ mqtt.Client, msg mqtt.Message) {
	var r Reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		c.log.Warn("amplitude unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	c.println(formatReading(r))
}

func (c *consolePrinter) setting(_ mqtt.Client, msg mqtt.Message) {
	var s stimulus.Setting
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		c.log.Warn("stimulus unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	c.println(formatSetting(s))
}

// subscribeConsole prints amplitudes for every sensor and each stimulus
// setting.
func subscribeConsole(client stimulus.Subscriber, cfg *config.Config, p *consolePrinter) error {
	subs := []struct {
		topic string
		cb    mqtt.MessageHandler
	}{
		{cfg.TopicAmplitude + "/+", p.amplitude},
		{cfg.TopicStimulus, p.setting},
	}
	for _, s := range subs {
		token := client.Subscribe(s.topic, 0, s.cb)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		p.log.Info("subscribed", zap.String("topic", s.topic))
	}
	return nil
}

// RunConsole prints telemetry from the broker to out until ctx is done.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer, log *zap.Logger) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-console", log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeConsole(client, cfg, &consolePrinter{out: out, log: log}); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}
