package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	b := NewExponentialBackoffRange(100*time.Millisecond, time.Second)

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.NextDelay())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextDelay())
}

func TestDefaultBackoff(t *testing.T) {
	var s ReconnectStrategy = NewExponentialBackoff()
	assert.Equal(t, time.Second, s.NextDelay())
	assert.Equal(t, 2*time.Second, s.NextDelay())
}
