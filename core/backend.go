package core

import (
	"fmt"
	"log/slog"

	"github.com/lisuiheng/sonic-go/audio"
)

// Backends lists the names NewBackend accepts.
var Backends = []string{"malgo", "portaudio", "oto", "memory"}

// NewBackend 根据名称创建音频后端
func NewBackend(name string, logger *slog.Logger) (audio.Backend, error) {
	switch name {
	case "", "malgo":
		b, err := audio.NewMalgoBackend(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "portaudio":
		b, err := audio.NewPortAudioBackend(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "oto":
		return audio.NewOtoBackend(logger), nil
	case "memory":
		return audio.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
}
