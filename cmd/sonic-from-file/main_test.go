package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/modem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMessage(t *testing.T, rate float64, msg string) string {
	t.Helper()
	p := modem.DefaultParameters()
	p.SampleRateOut = rate
	e, err := modem.New(p)
	require.NoError(t, err)
	require.NoError(t, e.Init([]byte(msg), modem.ProtocolAudibleFast, modem.DefaultVolume))
	wave, err := e.Encode()
	require.NoError(t, err)

	samples := make([]int16, len(wave)/2)
	for i := range samples {
		samples[i] = int16(binary.NativeEndian.Uint16(wave[2*i:]))
	}

	var buf bytes.Buffer
	require.NoError(t, audio.WriteWAV(&buf, int(rate), samples))
	path := filepath.Join(t.TempDir(), "msg.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunDecodesFile(t *testing.T) {
	for _, rate := range []float64{48000, 44100} {
		path := writeMessage(t, rate, "from a file")

		var stdout, stderr bytes.Buffer
		require.NoError(t, run([]string{path}, nil, &stdout, &stderr), stderr.String())
		assert.Equal(t, "from a file\n", stdout.String())
	}
}

func TestRunNoPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, audio.WriteWAV(&buf, 48000, make([]int16, 48000)))

	var stdout, stderr bytes.Buffer
	assert.Error(t, run(nil, &buf, &stdout, &stderr))
	assert.Zero(t, stdout.Len())
}

func TestRunRejectsGarbage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.ErrorIs(t, run(nil, bytes.NewReader([]byte("not a wav file at all")), &stdout, &stderr), audio.ErrInvalidWAV)
}
