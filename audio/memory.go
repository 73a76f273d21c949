package audio

import (
	"fmt"
	"sync"
)

// GrantFunc decides the obtained format for a request on a MemoryBackend.
type GrantFunc func(dir Direction, index int, want Spec) Spec

// MemoryBackend provides in-process devices without hardware. Captured audio
// is supplied with MemoryDevice.Feed and played audio collected with Drain.
type MemoryBackend struct {
	mu       sync.Mutex
	names    map[Direction][]string
	failures map[Direction]error
	grant    GrantFunc
	opened   map[Direction][]*MemoryDevice
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		names: map[Direction][]string{
			Playback: {"memory playback"},
			Capture:  {"memory capture"},
		},
		failures: make(map[Direction]error),
		opened:   make(map[Direction][]*MemoryDevice),
	}
}

func (b *MemoryBackend) Name() string { return "memory" }

// SetDevices replaces the device list of one direction.
func (b *MemoryBackend) SetDevices(dir Direction, names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names[dir] = names
}

// FailOpen makes every Open in dir fail with err. A nil err clears it.
func (b *MemoryBackend) FailOpen(dir Direction, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, dir)
		return
	}
	b.failures[dir] = err
}

// SetGrant installs a hook that rewrites the obtained format.
func (b *MemoryBackend) SetGrant(fn GrantFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grant = fn
}

// Opened returns the devices opened so far in dir, oldest first.
func (b *MemoryBackend) Opened(dir Direction) []*MemoryDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*MemoryDevice(nil), b.opened[dir]...)
}

func (b *MemoryBackend) Devices(dir Direction) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.names[dir]...), nil
}

func (b *MemoryBackend) Open(dir Direction, index int, want Spec) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[dir]; err != nil {
		return nil, err
	}
	if index != DefaultDevice && (index < 0 || index >= len(b.names[dir])) {
		return nil, fmt.Errorf("%w: %s device #%d", ErrNoSuchDevice, dir, index)
	}

	obtained := want
	if b.grant != nil {
		obtained = b.grant(dir, index, want)
	}

	dev := &MemoryDevice{queuedDevice: newQueuedDevice(dir, obtained, nil)}
	b.opened[dir] = append(b.opened[dir], dev)
	return dev, nil
}

func (b *MemoryBackend) Close() error { return nil }

// MemoryDevice is a device of a MemoryBackend.
type MemoryDevice struct {
	*queuedDevice
}

// Feed delivers captured bytes as a hardware callback would: dropped while
// paused or closed.
func (d *MemoryDevice) Feed(p []byte) {
	d.capture(p)
}

// Drain consumes up to n bytes of queued playback audio, returning what was
// played. Nothing is consumed while paused.
func (d *MemoryDevice) Drain(n int) []byte {
	if d.Paused() {
		return nil
	}
	if q := d.queue.Len(); n > q {
		n = q
	}
	out := make([]byte, n)
	d.queue.Read(out)
	return out
}

// Closed reports whether the device has been closed.
func (d *MemoryDevice) Closed() bool {
	return d.closed.Load()
}
