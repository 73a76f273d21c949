package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControllerHalfDuplex(t *testing.T) {
	c := NewController()
	assert.Equal(t, StateIdle, c.State())

	assert.True(t, c.StartReceiving())
	assert.True(t, c.IsReceiving())
	assert.False(t, c.StartSending(), "sending must fail while receiving")
	assert.Equal(t, StateReceiving, c.State())

	// stopping the wrong direction is a no-op
	c.StopSending()
	assert.Equal(t, StateReceiving, c.State())

	c.StopReceiving()
	assert.Equal(t, StateIdle, c.State())

	assert.True(t, c.StartSending())
	assert.True(t, c.IsSending())
	assert.False(t, c.IsReceiving())
	assert.False(t, c.StartReceiving())

	c.StopSending()
	assert.Equal(t, StateIdle, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "receiving", StateReceiving.String())
	assert.Equal(t, "transmitting", StateTransmitting.String())
}
