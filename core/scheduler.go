package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/metrics"
	"github.com/lisuiheng/sonic-go/modem"
)

const (
	DefaultSilenceTimeout  = 500 * time.Millisecond
	DefaultBacklogFrames   = 32
	DefaultPlaybackSamples = 16 * 1024
	DefaultCaptureSamples  = 1024
)

// Payload is a received message.
type Payload struct {
	ID        uuid.UUID
	Timestamp time.Time
	Data      []byte
}

// TxRequest asks the scheduler to transmit Data.
type TxRequest struct {
	Data     []byte
	Protocol modem.ProtocolID
	Volume   int
}

// InitParams select the devices and the engine configuration.
type InitParams struct {
	PlaybackIndex    int
	CaptureIndex     int
	PayloadLength    int
	SampleRateOffset int
	UseDSS           bool
}

// SchedulerOptions tune a Scheduler. Zero values take the defaults.
type SchedulerOptions struct {
	SilenceTimeout    time.Duration
	BacklogFrames     int
	PlaybackSamples   int
	CaptureSamples    int
	CaptureDeviceName string
	NewEngine         EngineFactory
	Clock             func() time.Time
	Metrics           *metrics.Metrics
}

func (o *SchedulerOptions) applyDefaults() {
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = DefaultSilenceTimeout
	}
	if o.BacklogFrames <= 0 {
		o.BacklogFrames = DefaultBacklogFrames
	}
	if o.PlaybackSamples <= 0 {
		o.PlaybackSamples = DefaultPlaybackSamples
	}
	if o.CaptureSamples <= 0 {
		o.CaptureSamples = DefaultCaptureSamples
	}
	if o.NewEngine == nil {
		o.NewEngine = NewModemEngine
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Scheduler decides on every tick whether the station transmits or receives
// and moves audio between the devices and the engine. Tick, Initialize and
// Teardown are meant for one driving goroutine; Send, State and Received may
// be used from any goroutine.
type Scheduler struct {
	mu      sync.Mutex
	opts    SchedulerOptions
	logger  *slog.Logger
	metrics *metrics.Metrics

	neg        *Negotiator
	ctrl       audio.Controller
	adapter    *engineAdapter
	engineCfg  modem.Parameters
	lastNoData time.Time // SilenceTimer

	txQueue  chan TxRequest
	received chan Payload
}

func NewScheduler(backend audio.Backend, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	opts.applyDefaults()
	neg := NewNegotiator(backend, logger)
	neg.SetCaptureDeviceName(opts.CaptureDeviceName)

	return &Scheduler{
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		neg:      neg,
		ctrl:     audio.NewController(),
		txQueue:  make(chan TxRequest, 16),
		received: make(chan Payload, 64),
	}
}

// Received delivers payloads as they complete.
func (s *Scheduler) Received() <-chan Payload { return s.received }

// Initialize opens whatever devices are not open yet and rebuilds the engine
// when a device was opened. One missing direction is a valid degraded mode;
// the call fails only when no device can be used.
func (s *Scheduler) Initialize(p InitParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.neg.Playback() != nil && s.neg.Capture() != nil {
		return ErrAlreadyInitialized
	}
	if s.neg.Playback() == nil && s.neg.Capture() == nil {
		s.neg.EnumerateDevices()
	}

	rate := modem.DefaultSampleRate + p.SampleRateOffset

	var playErr, captErr error
	if s.neg.Playback() == nil {
		_, playErr = s.neg.Open(audio.Playback, p.PlaybackIndex, audio.Spec{
			SampleRate: rate,
			Encoding:   audio.EncodingS16,
			Channels:   1,
			Samples:    s.opts.PlaybackSamples,
		})
		if playErr != nil {
			s.logger.Warn("Playback unavailable", "error", playErr)
		}
	}
	if s.neg.Capture() == nil {
		_, captErr = s.neg.Open(audio.Capture, p.CaptureIndex, audio.Spec{
			SampleRate: rate,
			Encoding:   audio.EncodingF32,
			Channels:   1,
			Samples:    s.opts.CaptureSamples,
		})
		if captErr != nil {
			s.logger.Warn("Capture unavailable", "error", captErr)
		}
	}

	if s.neg.Playback() == nil && s.neg.Capture() == nil {
		s.neg.TakeReinit()
		return fmt.Errorf("%w: no usable audio device: %w", ErrConfiguration, errors.Join(playErr, captErr))
	}

	if s.neg.TakeReinit() {
		if err := s.rebuildEngine(p); err != nil {
			s.teardown()
			return err
		}
	}

	s.lastNoData = s.opts.Clock()
	return nil
}

// rebuildEngine releases the current engine before building its replacement.
func (s *Scheduler) rebuildEngine(p InitParams) error {
	if s.adapter != nil {
		if err := s.adapter.close(); err != nil {
			s.logger.Warn("Failed to release engine", "error", err)
		}
		s.adapter = nil
	}

	params := modem.Parameters{
		PayloadLength:        p.PayloadLength,
		SampleRate:           modem.DefaultSampleRate,
		SamplesPerFrame:      modem.DefaultSamplesPerFrame,
		SoundMarkerThreshold: modem.DefaultSoundMarkerThreshold,
		SampleRateInp:        modem.DefaultSampleRate,
		SampleRateOut:        modem.DefaultSampleRate,
	}
	if p.UseDSS {
		params.OperatingMode |= modem.ModeUseDSS
	}

	for _, dir := range []audio.Direction{audio.Capture, audio.Playback} {
		dev := s.neg.device(dir)
		if dev == nil {
			continue
		}
		spec := dev.Spec()
		format := SampleFormatFor(spec.Encoding)
		if format == modem.SampleFormatUndefined {
			s.logger.Warn("Unsupported sample encoding, dropping device",
				"direction", dir, "encoding", spec.Encoding)
			if err := s.neg.Release(dir); err != nil {
				s.logger.Warn("Failed to close device", "direction", dir, "error", err)
			}
			continue
		}
		if dir == audio.Capture {
			params.SampleRateInp = float64(spec.SampleRate)
			params.SampleFormatInp = format
			params.OperatingMode |= modem.ModeRX
		} else {
			params.SampleRateOut = float64(spec.SampleRate)
			params.SampleFormatOut = format
			params.OperatingMode |= modem.ModeTX
		}
	}

	if !params.OperatingMode.Has(modem.ModeRX) && !params.OperatingMode.Has(modem.ModeTX) {
		return fmt.Errorf("%w: no device with a supported sample encoding", ErrConfiguration)
	}

	engine, err := s.opts.NewEngine(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	s.adapter = newEngineAdapter(engine)
	s.engineCfg = params

	s.logger.Info("Engine configured",
		"mode", params.OperatingMode,
		"payload_length", params.PayloadLength,
		"sample_rate_inp", params.SampleRateInp,
		"sample_rate_out", params.SampleRateOut,
		"format_inp", params.SampleFormatInp,
		"format_out", params.SampleFormatOut)
	return nil
}

// Tick runs one scheduling step. It returns false when no device is open.
func (s *Scheduler) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	play, capt := s.neg.Playback(), s.neg.Capture()
	if (play == nil && capt == nil) || s.adapter == nil {
		return false
	}

	s.acceptTx(play)
	if s.adapter.hasPendingOutbound() {
		s.transmit(play, capt)
	} else {
		s.receive(play, capt)
	}

	var pq, cq int
	if play != nil {
		pq = play.QueuedBytes()
	}
	if capt != nil {
		cq = capt.QueuedBytes()
	}
	s.metrics.RecordTick(int(s.ctrl.State()), pq, cq)
	return true
}

// acceptTx hands the next queued request to the engine once the previous
// waveform has drained.
func (s *Scheduler) acceptTx(play audio.Device) {
	if play == nil || s.adapter.hasPendingOutbound() || play.QueuedBytes() >= s.adapter.frameBytesOut() {
		return
	}
	select {
	case req := <-s.txQueue:
		if err := s.adapter.engine.Init(req.Data, req.Protocol, req.Volume); err != nil {
			s.logger.Warn("Dropping transmit request", "error", err, "bytes", len(req.Data))
		}
	default:
	}
}

func (s *Scheduler) transmit(play, capt audio.Device) {
	if capt != nil {
		capt.Pause(true)
	}
	if play != nil {
		play.Pause(true)
	}
	s.ctrl.StopReceiving()
	s.ctrl.StartSending()

	start := time.Now()
	wave, err := s.adapter.encode()
	if err != nil {
		s.logger.Warn("Failed to encode payload", "error", err)
		return
	}
	if play == nil {
		return
	}
	if err := play.Queue(wave); err != nil {
		s.logger.Warn("Failed to queue waveform", "error", err, "bytes", len(wave))
		return
	}
	s.metrics.RecordSent(len(wave), time.Since(start))
	s.logger.Debug("Queued waveform", "bytes", len(wave), "queued", play.QueuedBytes())
}

func (s *Scheduler) receive(play, capt audio.Device) {
	if play != nil {
		// 队列播完后自然静音
		play.Pause(false)
	}

	now := s.opts.Clock()
	if play != nil && play.QueuedBytes() >= s.adapter.frameBytesOut() {
		s.lastNoData = now
		return
	}

	s.ctrl.StopSending()
	s.ctrl.StartReceiving()
	if capt == nil {
		return
	}
	capt.Pause(false)

	nHave := capt.QueuedBytes()
	nNeed := s.adapter.frameBytesInp()
	if now.Sub(s.lastNoData) <= s.opts.SilenceTimeout || nHave < nNeed {
		capt.Clear()
		return
	}

	frame := make([]byte, nNeed)
	n, err := capt.Dequeue(frame)
	if err != nil {
		s.logger.Warn("Failed to dequeue capture audio", "error", err)
		return
	}

	err = s.adapter.decode(frame[:n])
	s.metrics.RecordDecode(err == nil)
	if err != nil {
		s.logger.Warn("Failed to decode input data", "error", err, "expected", nNeed, "actual", n)
	} else if data := s.adapter.takeCompletedPayload(); data != nil {
		s.emit(data, now)
	}
	if d := s.adapter.dropped(); d > 0 {
		s.metrics.RecordCorrupted(d)
		s.logger.Warn("Dropped corrupted transmission", "count", d)
	}

	s.guardBacklog(capt, nNeed)
}

// guardBacklog purges the capture queue when more than BacklogFrames frames
// are still waiting after a decode.
func (s *Scheduler) guardBacklog(capt audio.Device, nNeed int) {
	rest := capt.QueuedBytes()
	limit := s.opts.BacklogFrames * nNeed
	if rest <= limit {
		return
	}
	capt.Clear()
	s.metrics.RecordOverrun(rest)
	s.logger.Warn("Slow processing, clearing queued capture audio",
		"error", ErrOverrun,
		"queued", rest,
		"frame_bytes", nNeed,
		"limit", limit)
}

func (s *Scheduler) emit(data []byte, at time.Time) {
	p := Payload{ID: uuid.New(), Timestamp: at, Data: data}
	s.metrics.RecordReceived()
	s.logger.Info("Received payload", "id", p.ID, "bytes", len(data))

	select {
	case s.received <- p:
	default:
		s.logger.Warn("Receive channel full, dropping payload", "id", p.ID)
	}
}

// Send queues a payload for transmission. The payload is encoded on a later
// tick once any previous waveform has finished playing.
func (s *Scheduler) Send(req TxRequest) error {
	s.mu.Lock()
	initialized := s.adapter != nil
	hasPlayback := s.neg.Playback() != nil
	maxPayload := s.engineCfg.MaxPayload()
	s.mu.Unlock()

	switch {
	case !initialized:
		return ErrNotInitialized
	case !hasPlayback:
		return ErrNoPlayback
	case len(req.Data) == 0:
		return ErrEmptyPayload
	case len(req.Data) > maxPayload:
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLong, len(req.Data), maxPayload)
	}

	select {
	case s.txQueue <- req:
		return nil
	default:
		return ErrTxQueueFull
	}
}

// Teardown pauses both devices, then releases the engine and the devices.
// It returns false when nothing was open.
func (s *Scheduler) Teardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.neg.Playback() == nil && s.neg.Capture() == nil {
		s.logger.Debug("Teardown with no open devices")
		return false
	}
	s.teardown()
	return true
}

func (s *Scheduler) teardown() {
	s.neg.PauseAll()
	if s.adapter != nil {
		if err := s.adapter.close(); err != nil {
			s.logger.Warn("Failed to release engine", "error", err)
		}
		s.adapter = nil
	}
	if err := s.neg.Close(); err != nil {
		s.logger.Warn("Failed to close devices", "error", err)
	}
	s.neg.TakeReinit()
	s.ctrl.StopSending()
	s.ctrl.StopReceiving()

	for {
		select {
		case <-s.txQueue:
		default:
			return
		}
	}
}

// State returns the half-duplex state.
func (s *Scheduler) State() audio.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.neg.Playback() == nil && s.neg.Capture() == nil {
		return audio.StateIdle
	}
	return s.ctrl.State()
}

// EngineConfig returns the configuration of the current engine.
func (s *Scheduler) EngineConfig() (modem.Parameters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineCfg, s.adapter != nil
}

// Progress reports the receiver position of the current engine.
func (s *Scheduler) Progress() modem.RxProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return modem.RxProgress{}
	}
	return s.adapter.engine.RxProgress()
}
