package modem

import "fmt"

// SampleFormat 引擎使用的PCM采样格式
type SampleFormat int

const (
	SampleFormatUndefined SampleFormat = iota
	SampleFormatU8
	SampleFormatI8
	SampleFormatU16
	SampleFormatI16
	SampleFormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatI8:
		return "i8"
	case SampleFormatU16:
		return "u16"
	case SampleFormatI16:
		return "i16"
	case SampleFormatF32:
		return "f32"
	default:
		return "undefined"
	}
}

// Size returns bytes per sample, 0 for SampleFormatUndefined.
func (f SampleFormat) Size() int {
	switch f {
	case SampleFormatU8, SampleFormatI8:
		return 1
	case SampleFormatU16, SampleFormatI16:
		return 2
	case SampleFormatF32:
		return 4
	default:
		return 0
	}
}

// OperatingMode is a set of flags.
type OperatingMode int

const (
	ModeRX OperatingMode = 1 << iota
	ModeTX
	// ModeUseDSS spreads every symbol over a second, mirrored pair of bands.
	ModeUseDSS

	ModeRXAndTX = ModeRX | ModeTX
)

func (m OperatingMode) Has(flag OperatingMode) bool { return m&flag == flag }

func (m OperatingMode) String() string {
	var s string
	switch {
	case m.Has(ModeRXAndTX):
		s = "rx+tx"
	case m.Has(ModeRX):
		s = "rx"
	case m.Has(ModeTX):
		s = "tx"
	default:
		s = fmt.Sprintf("mode(%d)", int(m))
	}
	if m.Has(ModeUseDSS) {
		s += "+dss"
	}
	return s
}
