package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend opens callback streams through PortAudio.
type PortAudioBackend struct {
	logger *slog.Logger
}

func NewPortAudioBackend(logger *slog.Logger) (*PortAudioBackend, error) {
	// 初始化PortAudio
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioBackend{logger: logger}, nil
}

func (b *PortAudioBackend) Name() string { return "portaudio" }

func (b *PortAudioBackend) devices(dir Direction) ([]*portaudio.DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var out []*portaudio.DeviceInfo
	for _, d := range all {
		if (dir == Playback && d.MaxOutputChannels > 0) || (dir == Capture && d.MaxInputChannels > 0) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (b *PortAudioBackend) Devices(dir Direction) ([]string, error) {
	infos, err := b.devices(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, d := range infos {
		names[i] = d.Name
	}
	return names, nil
}

func (b *PortAudioBackend) pick(dir Direction, index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		if dir == Playback {
			return portaudio.DefaultOutputDevice()
		}
		return portaudio.DefaultInputDevice()
	}

	infos, err := b.devices(dir)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(infos) {
		return nil, fmt.Errorf("%w: %s device #%d", ErrNoSuchDevice, dir, index)
	}
	return infos[index], nil
}

func (b *PortAudioBackend) Open(dir Direction, index int, want Spec) (Device, error) {
	info, err := b.pick(dir, index)
	if err != nil {
		return nil, err
	}

	var params portaudio.StreamParameters
	if dir == Playback {
		params = portaudio.HighLatencyParameters(nil, info)
		params.Output.Channels = want.Channels
	} else {
		params = portaudio.LowLatencyParameters(info, nil)
		params.Input.Channels = want.Channels
	}
	params.SampleRate = float64(want.SampleRate)
	params.FramesPerBuffer = want.Samples

	var stream *portaudio.Stream
	dev := newQueuedDevice(dir, want, func() error {
		if err := stream.Stop(); err != nil {
			return err
		}
		return stream.Close()
	})

	callback, err := paCallback(dev, want.Encoding)
	if err != nil {
		return nil, err
	}

	// 打开音频流
	stream, err = portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", dir, err)
	}

	obtained := want
	if si := stream.Info(); si != nil && si.SampleRate > 0 {
		obtained.SampleRate = int(math.Round(si.SampleRate))
	}
	dev.spec = obtained

	// 启动音频流
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start %s stream: %w", dir, err)
	}

	b.logger.Info("Audio device opened",
		"backend", b.Name(),
		"direction", dir,
		"device", info.Name,
		"spec", obtained)
	return dev, nil
}

func (b *PortAudioBackend) Close() error {
	// 终止PortAudio
	return portaudio.Terminate()
}

// paCallback builds a typed PortAudio callback that moves samples between the
// stream buffer and the device queue.
func paCallback(dev *queuedDevice, enc Encoding) (any, error) {
	switch enc {
	case EncodingU8:
		return paTyped(dev, 1,
			func(b []byte) uint8 { return b[0] },
			func(b []byte, v uint8) { b[0] = v }), nil
	case EncodingS8:
		return paTyped(dev, 1,
			func(b []byte) int8 { return int8(b[0]) },
			func(b []byte, v int8) { b[0] = byte(v) }), nil
	case EncodingS16:
		return paTyped(dev, 2,
			func(b []byte) int16 { return int16(binary.NativeEndian.Uint16(b)) },
			func(b []byte, v int16) { binary.NativeEndian.PutUint16(b, uint16(v)) }), nil
	case EncodingS32:
		return paTyped(dev, 4,
			func(b []byte) int32 { return int32(binary.NativeEndian.Uint32(b)) },
			func(b []byte, v int32) { binary.NativeEndian.PutUint32(b, uint32(v)) }), nil
	case EncodingF32:
		return paTyped(dev, 4,
			func(b []byte) float32 { return math.Float32frombits(binary.NativeEndian.Uint32(b)) },
			func(b []byte, v float32) { binary.NativeEndian.PutUint32(b, math.Float32bits(v)) }), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}
}

func paTyped[T any](dev *queuedDevice, size int, get func([]byte) T, put func([]byte, T)) func([]T) {
	var scratch []byte
	return func(buf []T) {
		n := len(buf) * size
		if cap(scratch) < n {
			scratch = make([]byte, n)
		}
		raw := scratch[:n]

		if dev.dir == Playback {
			dev.render(raw)
			for i := range buf {
				buf[i] = get(raw[i*size:])
			}
			return
		}

		for i, v := range buf {
			put(raw[i*size:], v)
		}
		dev.capture(raw)
	}
}
