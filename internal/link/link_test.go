package link

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vibration_bench/internal/frame"
)

type pipe struct {
	io.Reader
	bytes.Buffer
	closed bool
	err    error
}

func (p *pipe) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.Buffer.Write(b)
}

func (p *pipe) Read(b []byte) (int, error) { return p.Reader.Read(b) }

func (p *pipe) Close() error {
	p.closed = true
	return nil
}

func TestSendAndResync(t *testing.T) {
	p := &pipe{Reader: bytes.NewReader([]byte{0x7F})}
	l := New(p, nil)

	require.NoError(t, l.Send(frame.CmdStart))
	require.NoError(t, l.Resync())
	assert.Equal(t, "ses", p.Buffer.String())

	b := make([]byte, 1)
	n, err := l.Reader().Read(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x7F), b[0])

	require.NoError(t, l.Close())
	assert.True(t, p.closed)
}

func TestSendError(t *testing.T) {
	p := &pipe{Reader: bytes.NewReader(nil), err: errors.New("unplugged")}
	l := New(p, nil)
	err := l.Resync()
	assert.ErrorContains(t, err, "unplugged")
	assert.ErrorContains(t, err, "stop")
}

func TestOpenSerialMissingPort(t *testing.T) {
	_, err := OpenSerial("/dev/does-not-exist-vibench", 460800)
	assert.Error(t, err)
}
