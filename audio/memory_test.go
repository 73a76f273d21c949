package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendOpen(t *testing.T) {
	b := NewMemoryBackend()

	names, err := b.Devices(Capture)
	require.NoError(t, err)
	assert.Equal(t, []string{"memory capture"}, names)

	want := Spec{SampleRate: 48000, Encoding: EncodingF32, Channels: 1, Samples: 1024}
	dev, err := b.Open(Capture, DefaultDevice, want)
	require.NoError(t, err)
	assert.Equal(t, want, dev.Spec())
	assert.Equal(t, Capture, dev.Direction())
	require.Len(t, b.Opened(Capture), 1)

	_, err = b.Open(Capture, 3, want)
	assert.ErrorIs(t, err, ErrNoSuchDevice)
}

func TestMemoryBackendGrantAndFailure(t *testing.T) {
	b := NewMemoryBackend()
	b.SetGrant(func(dir Direction, _ int, want Spec) Spec {
		want.SampleRate = 44100
		return want
	})

	dev, err := b.Open(Playback, 0, Spec{SampleRate: 48000, Encoding: EncodingS16, Channels: 1, Samples: 16})
	require.NoError(t, err)
	assert.Equal(t, 44100, dev.Spec().SampleRate)

	denied := errors.New("denied")
	b.FailOpen(Capture, denied)
	_, err = b.Open(Capture, DefaultDevice, Spec{})
	assert.ErrorIs(t, err, denied)

	b.FailOpen(Capture, nil)
	_, err = b.Open(Capture, DefaultDevice, Spec{Encoding: EncodingF32, Channels: 1})
	assert.NoError(t, err)
}

func TestMemoryDeviceFeedDrain(t *testing.T) {
	b := NewMemoryBackend()
	spec := Spec{SampleRate: 8000, Encoding: EncodingU8, Channels: 1, Samples: 4}

	play, err := b.Open(Playback, DefaultDevice, spec)
	require.NoError(t, err)
	mp := b.Opened(Playback)[0]

	require.NoError(t, play.Queue([]byte{1, 2, 3}))
	assert.Nil(t, mp.Drain(2), "paused playback is not consumed")

	play.Pause(false)
	assert.Equal(t, []byte{1, 2}, mp.Drain(2))
	assert.Equal(t, []byte{3}, mp.Drain(10))

	_, err = b.Open(Capture, DefaultDevice, spec)
	require.NoError(t, err)
	mc := b.Opened(Capture)[0]
	mc.Feed([]byte{9})
	assert.Zero(t, mc.QueuedBytes())
	mc.Pause(false)
	mc.Feed([]byte{9})
	assert.Equal(t, 1, mc.QueuedBytes())

	require.NoError(t, mc.Close())
	assert.True(t, mc.Closed())
}
