package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoBackend is playback only. oto allows a single context per process, so
// the first opened format sticks until the process exits.
type OtoBackend struct {
	mu     sync.Mutex
	ctx    *oto.Context
	spec   Spec
	logger *slog.Logger
}

func NewOtoBackend(logger *slog.Logger) *OtoBackend {
	return &OtoBackend{logger: logger}
}

func (b *OtoBackend) Name() string { return "oto" }

func (b *OtoBackend) Devices(dir Direction) ([]string, error) {
	if dir != Playback {
		return nil, ErrUnsupportedDirection
	}
	return []string{"default"}, nil
}

func (b *OtoBackend) Open(dir Direction, index int, want Spec) (Device, error) {
	if dir != Playback {
		return nil, ErrUnsupportedDirection
	}
	if index != DefaultDevice && index != 0 {
		return nil, fmt.Errorf("%w: %s device #%d", ErrNoSuchDevice, dir, index)
	}

	if want.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", want.SampleRate)
	}
	format, ok := otoFormat(want.Encoding)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, want.Encoding)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   want.SampleRate,
			ChannelCount: want.Channels,
			Format:       format,
			BufferSize:   time.Duration(want.Samples) * time.Second / time.Duration(want.SampleRate),
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan
		b.ctx = ctx
		b.spec = want
	} else if b.spec.SampleRate != want.SampleRate || b.spec.Encoding != want.Encoding {
		b.logger.Warn("oto context already running with a different format",
			"have", b.spec, "want", want)
	}

	var player *oto.Player
	dev := newQueuedDevice(Playback, b.spec, func() error {
		return player.Close()
	})
	player = b.ctx.NewPlayer(&queueReader{dev: dev})
	player.Play()

	b.logger.Info("Audio device opened",
		"backend", b.Name(),
		"direction", dir,
		"spec", b.spec)
	return dev, nil
}

func (b *OtoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return b.ctx.Suspend()
	}
	return nil
}

// queueReader feeds an oto player forever; silence covers underruns.
type queueReader struct {
	dev *queuedDevice
}

func (r *queueReader) Read(p []byte) (int, error) {
	r.dev.render(p)
	return len(p), nil
}

func otoFormat(e Encoding) (oto.Format, bool) {
	switch e {
	case EncodingU8:
		return oto.FormatUnsignedInt8, true
	case EncodingS16:
		return oto.FormatSignedInt16LE, true
	case EncodingF32:
		return oto.FormatFloat32LE, true
	default:
		return 0, false
	}
}
