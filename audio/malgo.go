package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoBackend opens callback driven devices through miniaudio.
type MalgoBackend struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	// 初始化malgo上下文
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &MalgoBackend{ctx: ctx, logger: logger}, nil
}

func (b *MalgoBackend) Name() string { return "malgo" }

func (b *MalgoBackend) Devices(dir Direction) ([]string, error) {
	infos, err := b.deviceInfos(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(infos))
	for i := range infos {
		names[i] = infos[i].Name()
	}
	return names, nil
}

func (b *MalgoBackend) deviceInfos(dir Direction) ([]malgo.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil, ErrDeviceClosed
	}
	infos, err := b.ctx.Devices(malgoDeviceType(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", dir, err)
	}
	return infos, nil
}

// Open initialises and starts a device. The obtained rate, encoding and
// channel count are read back from miniaudio; the buffer size is not exposed
// by malgo, so the obtained Samples is the requested period size and is not
// verified against what the driver granted.
func (b *MalgoBackend) Open(dir Direction, index int, want Spec) (Device, error) {
	format, ok := malgoFormat(want.Encoding)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, want.Encoding)
	}

	// 创建设备配置
	deviceConfig := malgo.DefaultDeviceConfig(malgoDeviceType(dir))
	deviceConfig.SampleRate = uint32(want.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(want.Samples)
	deviceConfig.Alsa.NoMMap = 1

	var infos []malgo.DeviceInfo
	if index != DefaultDevice {
		var err error
		if infos, err = b.deviceInfos(dir); err != nil {
			return nil, err
		}
		if index < 0 || index >= len(infos) {
			return nil, fmt.Errorf("%w: %s device #%d", ErrNoSuchDevice, dir, index)
		}
	}

	switch dir {
	case Playback:
		deviceConfig.Playback.Format = format
		deviceConfig.Playback.Channels = uint32(want.Channels)
		if infos != nil {
			deviceConfig.Playback.DeviceID = infos[index].ID.Pointer()
		}
	case Capture:
		deviceConfig.Capture.Format = format
		deviceConfig.Capture.Channels = uint32(want.Channels)
		if infos != nil {
			deviceConfig.Capture.DeviceID = infos[index].ID.Pointer()
		}
	default:
		return nil, ErrUnsupportedDirection
	}

	var dev *queuedDevice
	// 回调在设备线程中执行, 只接触队列
	onData := func(pOutput, pInput []byte, _ uint32) {
		if dev == nil {
			want.Encoding.Silence(pOutput)
			return
		}
		if dir == Playback {
			dev.render(pOutput)
		} else {
			dev.capture(pInput)
		}
	}

	b.mu.Lock()
	if b.ctx == nil {
		b.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device: %w", dir, err)
	}

	obtained := Spec{
		SampleRate: int(device.SampleRate()),
		Samples:    want.Samples, // not reported by malgo
	}
	if dir == Playback {
		obtained.Encoding = encodingFromMalgo(device.PlaybackFormat())
		obtained.Channels = int(device.PlaybackChannels())
	} else {
		obtained.Encoding = encodingFromMalgo(device.CaptureFormat())
		obtained.Channels = int(device.CaptureChannels())
	}

	dev = newQueuedDevice(dir, obtained, func() error {
		stopErr := device.Stop()
		device.Uninit()
		return stopErr
	})

	// 启动设备; 暂停由队列层处理
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start %s device: %w", dir, err)
	}

	b.logger.Info("Audio device opened",
		"backend", b.Name(),
		"direction", dir,
		"index", index,
		"spec", obtained)
	return dev, nil
}

func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func malgoDeviceType(dir Direction) malgo.DeviceType {
	if dir == Capture {
		return malgo.Capture
	}
	return malgo.Playback
}

func malgoFormat(e Encoding) (malgo.FormatType, bool) {
	switch e {
	case EncodingU8:
		return malgo.FormatU8, true
	case EncodingS16:
		return malgo.FormatS16, true
	case EncodingS24:
		return malgo.FormatS24, true
	case EncodingS32:
		return malgo.FormatS32, true
	case EncodingF32:
		return malgo.FormatF32, true
	default:
		return malgo.FormatUnknown, false
	}
}

func encodingFromMalgo(f malgo.FormatType) Encoding {
	switch f {
	case malgo.FormatU8:
		return EncodingU8
	case malgo.FormatS16:
		return EncodingS16
	case malgo.FormatS24:
		return EncodingS24
	case malgo.FormatS32:
		return EncodingS32
	case malgo.FormatF32:
		return EncodingF32
	default:
		return EncodingUnknown
	}
}
