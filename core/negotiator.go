package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lisuiheng/sonic-go/audio"
)

// Negotiator owns at most one playback and one capture device.
type Negotiator struct {
	backend     audio.Backend
	logger      *slog.Logger
	playback    audio.Device
	capture     audio.Device
	reinit      bool
	captureName string
}

func NewNegotiator(backend audio.Backend, logger *slog.Logger) *Negotiator {
	return &Negotiator{backend: backend, logger: logger}
}

// SetCaptureDeviceName selects the capture device by name when the default
// device is requested.
func (n *Negotiator) SetCaptureDeviceName(name string) {
	n.captureName = name
}

func (n *Negotiator) Playback() audio.Device { return n.playback }

func (n *Negotiator) Capture() audio.Device { return n.capture }

func (n *Negotiator) device(dir audio.Direction) audio.Device {
	if dir == audio.Playback {
		return n.playback
	}
	return n.capture
}

// EnumerateDevices logs the devices of both directions.
func (n *Negotiator) EnumerateDevices() {
	for _, dir := range []audio.Direction{audio.Playback, audio.Capture} {
		names, err := n.backend.Devices(dir)
		if err != nil {
			n.logger.Warn("Failed to enumerate devices", "direction", dir, "error", err)
			continue
		}
		n.logger.Info("Found audio devices", "direction", dir, "count", len(names))
		for i, name := range names {
			n.logger.Info("Audio device", "direction", dir, "index", i, "name", name)
		}
	}
}

// Open opens the device of dir and returns the obtained format. A playback
// device must grant exactly the requested encoding, channel count and buffer
// size. Every device must be mono.
func (n *Negotiator) Open(dir audio.Direction, index int, want audio.Spec) (audio.Spec, error) {
	if dev := n.device(dir); dev != nil {
		return dev.Spec(), ErrAlreadyOpen
	}

	if dir == audio.Capture && index == audio.DefaultDevice && n.captureName != "" {
		index = n.lookup(dir, n.captureName)
	}

	n.logger.Info("Attempt to open device",
		"direction", dir,
		"index", index,
		"requested", want)

	dev, err := n.backend.Open(dir, index, want)
	if err != nil {
		return audio.Spec{}, fmt.Errorf("%w: couldn't open %s device: %v", ErrConfiguration, dir, err)
	}

	got := dev.Spec()
	n.logger.Info("Obtained device format",
		"direction", dir,
		"sample_rate", got.SampleRate, "required_sample_rate", want.SampleRate,
		"encoding", got.Encoding, "required_encoding", want.Encoding,
		"channels", got.Channels, "required_channels", want.Channels,
		"samples", got.Samples, "required_samples", want.Samples)

	var mismatch error
	switch {
	case got.Channels != 1:
		mismatch = fmt.Errorf("%w: %s device is not mono (%d channels)", ErrConfiguration, dir, got.Channels)
	case dir == audio.Playback &&
		(got.Encoding != want.Encoding || got.Channels != want.Channels || got.Samples != want.Samples):
		mismatch = fmt.Errorf("%w: playback device granted %s, required %s", ErrConfiguration, got, want)
	}
	if mismatch != nil {
		if err := dev.Close(); err != nil {
			n.logger.Warn("Failed to close rejected device", "direction", dir, "error", err)
		}
		return audio.Spec{}, mismatch
	}

	if dir == audio.Playback {
		n.playback = dev
	} else {
		n.capture = dev
	}
	n.reinit = true
	return got, nil
}

func (n *Negotiator) lookup(dir audio.Direction, name string) int {
	names, err := n.backend.Devices(dir)
	if err == nil {
		for i, candidate := range names {
			if candidate == name {
				return i
			}
		}
	}
	n.logger.Warn("Named device not found, using default", "direction", dir, "name", name)
	return audio.DefaultDevice
}

// Release closes the device of one direction.
func (n *Negotiator) Release(dir audio.Direction) error {
	dev := n.device(dir)
	if dev == nil {
		return nil
	}
	dev.Pause(true)
	if dir == audio.Playback {
		n.playback = nil
	} else {
		n.capture = nil
	}
	return dev.Close()
}

// TakeReinit reports whether a device was opened since the last call.
func (n *Negotiator) TakeReinit() bool {
	r := n.reinit
	n.reinit = false
	return r
}

// PauseAll pauses both directions.
func (n *Negotiator) PauseAll() {
	if n.capture != nil {
		n.capture.Pause(true)
	}
	if n.playback != nil {
		n.playback.Pause(true)
	}
}

// Close pauses both directions and then closes them.
func (n *Negotiator) Close() error {
	n.PauseAll()
	return errors.Join(n.Release(audio.Capture), n.Release(audio.Playback))
}
