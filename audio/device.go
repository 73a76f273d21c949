package audio

import (
	"sync"
	"sync/atomic"
)

// queuedDevice implements Device on top of a ByteQueue. Backends feed it from
// their hardware callback through render (playback) and capture (capture).
type queuedDevice struct {
	dir    Direction
	spec   Spec
	queue  *ByteQueue
	paused atomic.Bool
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
	release   func() error
}

func newQueuedDevice(dir Direction, spec Spec, release func() error) *queuedDevice {
	d := &queuedDevice{
		dir:     dir,
		spec:    spec,
		queue:   NewByteQueue(spec.FrameBytes() * 4),
		release: release,
	}
	// 与SDL一致, 设备打开后处于暂停状态
	d.paused.Store(true)
	return d
}

func (d *queuedDevice) Direction() Direction { return d.dir }

func (d *queuedDevice) Spec() Spec { return d.spec }

func (d *queuedDevice) Pause(paused bool) { d.paused.Store(paused) }

func (d *queuedDevice) Paused() bool { return d.paused.Load() }

func (d *queuedDevice) Queue(p []byte) error {
	if d.dir != Playback {
		return ErrWrongDirection
	}
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	d.queue.Write(p)
	return nil
}

func (d *queuedDevice) QueuedBytes() int { return d.queue.Len() }

func (d *queuedDevice) Dequeue(p []byte) (int, error) {
	if d.dir != Capture {
		return 0, ErrWrongDirection
	}
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}
	return d.queue.Read(p), nil
}

func (d *queuedDevice) Clear() { d.queue.Clear() }

func (d *queuedDevice) Close() error {
	d.closeOnce.Do(func() {
		d.paused.Store(true)
		d.closed.Store(true)
		if d.release != nil {
			d.closeErr = d.release()
		}
		d.queue.Clear()
	})
	return d.closeErr
}

// render fills out from the playback queue. A paused device or an underrun
// produces silence; a paused device keeps its queue intact.
func (d *queuedDevice) render(out []byte) {
	n := 0
	if !d.paused.Load() {
		n = d.queue.Read(out)
	}
	if n < len(out) {
		d.spec.Encoding.Silence(out[n:])
	}
}

// capture appends input from the hardware unless the device is paused.
func (d *queuedDevice) capture(in []byte) {
	if d.paused.Load() || d.closed.Load() {
		return
	}
	d.queue.Write(in)
}
