package modem

import (
	"errors"
	"fmt"
)

const (
	DefaultSampleRate           = 48000
	DefaultSamplesPerFrame      = 512
	DefaultSoundMarkerThreshold = 3.0
	DefaultVolume               = 50

	SampleRateMin = 1000
	SampleRateMax = 96000

	// MaxLengthFixed bounds PayloadLength in fixed-length mode.
	MaxLengthFixed = 64
	// MaxLengthVariable bounds a payload when PayloadLength <= 0.
	MaxLengthVariable = 140
)

var (
	ErrInvalidParameters = errors.New("invalid engine parameters")
	ErrPayloadTooLong    = errors.New("payload too long")
	ErrInvalidVolume     = errors.New("volume out of range")
	ErrUnknownProtocol   = errors.New("unknown protocol")
	ErrModeDisabled      = errors.New("operating mode disabled")
	ErrNoTxData          = errors.New("no pending tx data")
	ErrClosed            = errors.New("engine closed")
)

// Parameters configure an Engine. A PayloadLength <= 0 selects variable
// length payloads.
type Parameters struct {
	PayloadLength        int
	SampleRateInp        float64
	SampleRateOut        float64
	SampleRate           float64
	SamplesPerFrame      int
	SoundMarkerThreshold float64
	SampleFormatInp      SampleFormat
	SampleFormatOut      SampleFormat
	OperatingMode        OperatingMode
}

// DefaultParameters 返回默认参数: 48kHz, 变长负载, 收发模式
func DefaultParameters() Parameters {
	return Parameters{
		PayloadLength:        -1,
		SampleRateInp:        DefaultSampleRate,
		SampleRateOut:        DefaultSampleRate,
		SampleRate:           DefaultSampleRate,
		SamplesPerFrame:      DefaultSamplesPerFrame,
		SoundMarkerThreshold: DefaultSoundMarkerThreshold,
		SampleFormatInp:      SampleFormatF32,
		SampleFormatOut:      SampleFormatI16,
		OperatingMode:        ModeRXAndTX,
	}
}

// FixedLength reports whether payloads are padded to PayloadLength.
func (p Parameters) FixedLength() bool { return p.PayloadLength > 0 }

// MaxPayload returns the largest payload Init accepts.
func (p Parameters) MaxPayload() int {
	if p.FixedLength() {
		return p.PayloadLength
	}
	return MaxLengthVariable
}

func (p Parameters) Validate() error {
	if p.PayloadLength > MaxLengthFixed {
		return fmt.Errorf("%w: payload length %d > %d", ErrInvalidParameters, p.PayloadLength, MaxLengthFixed)
	}
	if p.SamplesPerFrame <= 0 || p.SamplesPerFrame%2 != 0 {
		return fmt.Errorf("%w: samples per frame %d", ErrInvalidParameters, p.SamplesPerFrame)
	}
	if p.SoundMarkerThreshold <= 0 {
		return fmt.Errorf("%w: sound marker threshold %g", ErrInvalidParameters, p.SoundMarkerThreshold)
	}
	if !p.OperatingMode.Has(ModeRX) && !p.OperatingMode.Has(ModeTX) {
		return fmt.Errorf("%w: mode %s has neither rx nor tx", ErrInvalidParameters, p.OperatingMode)
	}
	if err := checkRate("base", p.SampleRate); err != nil {
		return err
	}
	if p.OperatingMode.Has(ModeRX) {
		if err := checkRate("input", p.SampleRateInp); err != nil {
			return err
		}
		if p.SampleFormatInp == SampleFormatUndefined {
			return fmt.Errorf("%w: input sample format undefined", ErrInvalidParameters)
		}
	}
	if p.OperatingMode.Has(ModeTX) {
		if err := checkRate("output", p.SampleRateOut); err != nil {
			return err
		}
		if p.SampleFormatOut == SampleFormatUndefined {
			return fmt.Errorf("%w: output sample format undefined", ErrInvalidParameters)
		}
	}
	return nil
}

func checkRate(name string, rate float64) error {
	if rate < SampleRateMin || rate > SampleRateMax {
		return fmt.Errorf("%w: %s sample rate %g not in [%d, %d]",
			ErrInvalidParameters, name, rate, SampleRateMin, SampleRateMax)
	}
	return nil
}
