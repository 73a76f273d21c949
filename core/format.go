package core

import (
	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/modem"
)

// SampleFormatFor maps a hardware encoding to the engine sample format.
// S32 and F32 both become F32; anything outside the supported set is
// SampleFormatUndefined.
func SampleFormatFor(e audio.Encoding) modem.SampleFormat {
	switch e {
	case audio.EncodingU8:
		return modem.SampleFormatU8
	case audio.EncodingS8:
		return modem.SampleFormatI8
	case audio.EncodingU16:
		return modem.SampleFormatU16
	case audio.EncodingS16:
		return modem.SampleFormatI16
	case audio.EncodingS32, audio.EncodingF32:
		return modem.SampleFormatF32
	default:
		return modem.SampleFormatUndefined
	}
}
