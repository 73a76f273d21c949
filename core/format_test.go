package core

import (
	"testing"

	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/modem"
	"github.com/stretchr/testify/assert"
)

func TestSampleFormatFor(t *testing.T) {
	tests := map[audio.Encoding]modem.SampleFormat{
		audio.EncodingU8:      modem.SampleFormatU8,
		audio.EncodingS8:      modem.SampleFormatI8,
		audio.EncodingU16:     modem.SampleFormatU16,
		audio.EncodingS16:     modem.SampleFormatI16,
		audio.EncodingS32:     modem.SampleFormatF32,
		audio.EncodingF32:     modem.SampleFormatF32,
		audio.EncodingS24:     modem.SampleFormatUndefined,
		audio.EncodingUnknown: modem.SampleFormatUndefined,
	}

	for enc, want := range tests {
		assert.Equal(t, want, SampleFormatFor(enc), enc.String())
	}
}
