package app

import (
	"bytes"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/stimulus"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() doneToken {
	t := doneToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}        { return t.done }
func (doneToken) Error() error                   { return nil }

type subs struct {
	handlers map[string]mqtt.MessageHandler
}

func (s *subs) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	s.handlers[topic] = cb
	return newDoneToken()
}

type msg struct {
	topic   string
	payload string
}

func (m msg) Duplicate() bool   { return false }
func (m msg) Qos() byte         { return 0 }
func (m msg) Retained() bool    { return false }
func (m msg) Topic() string     { return m.topic }
func (m msg) MessageID() uint16 { return 0 }
func (m msg) Payload() []byte   { return []byte(m.payload) }
func (m msg) Ack()              {}

var _ stimulus.Subscriber = (*subs)(nil)

func TestConsolePrintsTelemetry(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	s := &subs{handlers: map[string]mqtt.MessageHandler{}}
	require.NoError(t, subscribeConsole(s, cfg, &consolePrinter{out: &out, log: zap.NewNop()}))

	amp := s.handlers["vibench/amplitude/+"]
	stim := s.handlers["vibench/stimulus"]
	require.NotNil(t, amp)
	require.NotNil(t, stim)

	amp(nil, msg{"vibench/amplitude/3", `{"sensor":3,"qd_amp":0.5,"phase":1,"max_amp":0.75,"seq":42}`})
	amp(nil, msg{"vibench/amplitude/3", `garbage`})
	stim(nil, msg{"vibench/stimulus", `{"freq_hz":70,"amplitude":0.25}`})

	assert.Equal(t,
		"[AMP 3] seq=   42 qd=   0.5000 phase=  1.000 max=   0.7500\n"+
			"[STIM ] freq=70.00Hz amplitude=0.25\n",
		out.String())
}
