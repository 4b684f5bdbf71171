package stimulus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type busLog struct {
	words [][]byte
	err   error
}

func (b *busLog) Tx(w, _ []byte) error {
	if b.err != nil {
		return b.err
	}
	b.words = append(b.words, append([]byte(nil), w...))
	return nil
}

func TestDACCode(t *testing.T) {
	assert.Equal(t, uint16(0), DACCode(0, 2.5))
	assert.Equal(t, uint16(512), DACCode(1.25, 2.5))
	assert.Equal(t, uint16(1023), DACCode(2.5, 2.5))
	assert.Equal(t, uint16(1023), DACCode(9, 2.5))
	assert.Equal(t, uint16(0), DACCode(-1, 2.5))
	assert.Equal(t, uint16(0), DACCode(1, 0))
	// 0.0012 V / 2.5 V * 1024 = 0.49 rounds down, 0.0013 V rounds up
	assert.Equal(t, uint16(0), DACCode(0.0012, 2.5))
	assert.Equal(t, uint16(1), DACCode(0.0013, 2.5))
	assert.InDelta(t, 1.25, DACVoltage(512, 2.5), 1e-12)
}

func TestDACWord(t *testing.T) {
	assert.Equal(t, uint16(0x1800), DACWord(DACA, 512))
	assert.Equal(t, uint16(0xFFFC), DACWord(DACAll, 0x3FF))
	assert.Equal(t, uint16(0x2004), DACWord(2, 0x401)) // data masked to 10 bits
}

func TestDACApply(t *testing.T) {
	bus := &busLog{}
	d, err := NewDAC(bus, 2, 2.5)
	require.NoError(t, err)

	require.NoError(t, d.Apply(context.Background(), 70, 0.5))
	require.NoError(t, d.Apply(context.Background(), 70, 1))
	require.NoError(t, d.Sleep())
	require.NoError(t, d.Wake())
	require.NoError(t, d.Wake()) // already awake: no transfer
	require.NoError(t, d.ClearAll())

	assert.Equal(t, [][]byte{
		{0x28, 0x00}, // B, code 512
		{0x2F, 0xFC}, // B, code 1023
		{0xE0, 0x00},
		{0x00, 0x00},
		{0xF0, 0x00},
	}, bus.words)

	bus.err = errors.New("spi down")
	assert.Error(t, d.Apply(context.Background(), 70, 0.1))

	_, err = NewDAC(bus, 0, 2.5)
	assert.Error(t, err)
	_, err = NewDAC(bus, 1, 0)
	assert.Error(t, err)
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	pubs    []published
	pubErr  error
	handler mqtt.MessageHandler
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	b.pubs = append(b.pubs, published{topic, retained, payload.([]byte)})
	return newToken(b.pubErr)
}

func (b *fakeBroker) Subscribe(_ string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.handler = cb
	return newToken(nil)
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return true }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

func TestMQTTApplyPublishesRetainedJSON(t *testing.T) {
	b := &fakeBroker{}
	m := NewMQTT(b, "vibench/stimulus")
	require.NoError(t, m.Apply(context.Background(), 70, 0.25))

	require.Len(t, b.pubs, 1)
	assert.Equal(t, "vibench/stimulus", b.pubs[0].topic)
	assert.True(t, b.pubs[0].retained)
	var s Setting
	require.NoError(t, json.Unmarshal(b.pubs[0].payload, &s))
	assert.Equal(t, Setting{FreqHz: 70, Amplitude: 0.25}, s)

	b.pubErr = errors.New("not connected")
	assert.ErrorContains(t, m.Apply(context.Background(), 70, 0.3), "not connected")
}

func TestListenForwardsSettings(t *testing.T) {
	b := &fakeBroker{}
	rec := NewRecorder(nil)
	require.NoError(t, Listen(context.Background(), b, "vibench/stimulus", rec, zap.NewNop()))
	require.NotNil(t, b.handler)

	b.handler(nil, message{topic: "vibench/stimulus", payload: []byte(`{"freq_hz":70,"amplitude":0.4}`)})
	b.handler(nil, message{topic: "vibench/stimulus", payload: []byte(`not json`)})

	assert.Equal(t, []Setting{{FreqHz: 70, Amplitude: 0.4}}, rec.Settings())
}
