package modem

import (
	"encoding/binary"
	"math"
)

// decodeSamples converts raw native-endian PCM to floats in [-1, 1] and
// appends them to dst. Trailing partial samples are ignored.
func decodeSamples(dst []float64, raw []byte, f SampleFormat) []float64 {
	size := f.Size()
	if size == 0 {
		return dst
	}
	for i := 0; i+size <= len(raw); i += size {
		var v float64
		switch f {
		case SampleFormatU8:
			v = (float64(raw[i]) - 128) / 128
		case SampleFormatI8:
			v = float64(int8(raw[i])) / 128
		case SampleFormatU16:
			v = (float64(binary.NativeEndian.Uint16(raw[i:])) - 32768) / 32768
		case SampleFormatI16:
			v = float64(int16(binary.NativeEndian.Uint16(raw[i:]))) / 32768
		case SampleFormatF32:
			v = float64(math.Float32frombits(binary.NativeEndian.Uint32(raw[i:])))
		}
		dst = append(dst, v)
	}
	return dst
}

// encodeSamples converts floats to native-endian PCM, clipping to [-1, 1].
func encodeSamples(samples []float64, f SampleFormat) []byte {
	size := f.Size()
	out := make([]byte, len(samples)*size)
	for i, s := range samples {
		s = max(-1, min(1, s))
		b := out[i*size:]
		switch f {
		case SampleFormatU8:
			b[0] = uint8(math.Round(s*127) + 128)
		case SampleFormatI8:
			b[0] = byte(int8(math.Round(s * 127)))
		case SampleFormatU16:
			binary.NativeEndian.PutUint16(b, uint16(math.Round(s*32767)+32768))
		case SampleFormatI16:
			binary.NativeEndian.PutUint16(b, uint16(int16(math.Round(s*32767))))
		case SampleFormatF32:
			binary.NativeEndian.PutUint32(b, math.Float32bits(float32(s)))
		}
	}
	return out
}
