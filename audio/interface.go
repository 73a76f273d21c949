// audio/interface.go
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedDirection = errors.New("direction not supported by backend")
	ErrUnsupportedEncoding  = errors.New("sample encoding not supported by backend")
	ErrWrongDirection       = errors.New("operation not valid for device direction")
	ErrDeviceClosed         = errors.New("device closed")
	ErrNoSuchDevice         = errors.New("no such device")
)

// DefaultDevice asks the backend for the platform default endpoint.
const DefaultDevice = -1

// Direction 音频方向
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	switch d {
	case Playback:
		return "playback"
	case Capture:
		return "capture"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Encoding is the sample encoding reported by the hardware. Multi-byte
// encodings use the native byte order.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingU8
	EncodingS8
	EncodingU16
	EncodingS16
	EncodingS24
	EncodingS32
	EncodingF32
)

func (e Encoding) String() string {
	switch e {
	case EncodingU8:
		return "u8"
	case EncodingS8:
		return "s8"
	case EncodingU16:
		return "u16"
	case EncodingS16:
		return "s16"
	case EncodingS24:
		return "s24"
	case EncodingS32:
		return "s32"
	case EncodingF32:
		return "f32"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes in one sample.
func (e Encoding) Size() int {
	switch e {
	case EncodingU8, EncodingS8:
		return 1
	case EncodingU16, EncodingS16:
		return 2
	case EncodingS24:
		return 3
	case EncodingS32, EncodingF32:
		return 4
	default:
		return 0
	}
}

// Silence fills p with the zero-amplitude value of the encoding.
func (e Encoding) Silence(p []byte) {
	switch e {
	case EncodingU8:
		for i := range p {
			p[i] = 0x80
		}
	case EncodingU16:
		for i := 0; i+1 < len(p); i += 2 {
			binary.NativeEndian.PutUint16(p[i:], 0x8000)
		}
	default:
		clear(p)
	}
}

// Spec describes an audio format, either the one requested from a backend or
// the one the hardware actually granted.
type Spec struct {
	SampleRate int
	Encoding   Encoding
	Channels   int
	Samples    int // frames per hardware buffer
}

func (s Spec) String() string {
	return fmt.Sprintf("%dHz/%s/%dch/%d", s.SampleRate, s.Encoding, s.Channels, s.Samples)
}

// FrameBytes returns the size of one buffer of Samples frames.
func (s Spec) FrameBytes() int {
	return s.Samples * s.Channels * s.Encoding.Size()
}

// Device is an open hardware endpoint. Queue-depth queries and
// enqueue/dequeue never block on the hardware thread.
type Device interface {
	Direction() Direction
	// Spec returns the obtained format.
	Spec() Spec
	Pause(paused bool)
	Paused() bool
	// Queue appends bytes for playback.
	Queue(p []byte) error
	QueuedBytes() int
	// Dequeue moves up to len(p) captured bytes into p.
	Dequeue(p []byte) (int, error)
	Clear()
	Close() error
}

// Backend enumerates and opens devices of one audio API.
type Backend interface {
	Name() string
	Devices(dir Direction) ([]string, error)
	Open(dir Direction, index int, want Spec) (Device, error)
	Close() error
}

// Controller 定义半双工控制接口
type Controller interface {
	StartSending() bool
	StopSending()
	StartReceiving() bool
	StopReceiving()
	IsSending() bool
	IsReceiving() bool
	State() State
}
