package core

import (
	"fmt"

	"github.com/lisuiheng/sonic-go/modem"
)

// Engine is the codec capability set the scheduler consumes.
type Engine interface {
	Init(payload []byte, protocol modem.ProtocolID, volume int) error
	TxHasData() bool
	Encode() ([]byte, error)
	Decode(raw []byte) bool
	TakeRxData() []byte
	RxProgress() modem.RxProgress
	RxFailures() int
	SamplesPerFrame() int
	SampleSizeInp() int
	SampleSizeOut() int
	Close() error
}

// EngineFactory builds an engine for a configuration.
type EngineFactory func(modem.Parameters) (Engine, error)

// NewModemEngine is the default EngineFactory.
func NewModemEngine(p modem.Parameters) (Engine, error) {
	e, err := modem.New(p)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// engineAdapter turns raw byte buffers into engine calls.
type engineAdapter struct {
	engine   Engine
	failures int
}

func newEngineAdapter(e Engine) *engineAdapter {
	return &engineAdapter{engine: e, failures: e.RxFailures()}
}

func (a *engineAdapter) hasPendingOutbound() bool {
	return a.engine.TxHasData()
}

// encode returns a complete waveform ready to queue for playback.
func (a *engineAdapter) encode() ([]byte, error) {
	wave, err := a.engine.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return wave, nil
}

func (a *engineAdapter) decode(p []byte) error {
	if !a.engine.Decode(p) {
		return fmt.Errorf("%w: %d bytes", ErrDecodeFailure, len(p))
	}
	return nil
}

// takeCompletedPayload returns a fully received payload, or nil.
func (a *engineAdapter) takeCompletedPayload() []byte {
	return a.engine.TakeRxData()
}

// dropped returns how many transmissions failed their integrity check since
// the previous call.
func (a *engineAdapter) dropped() int {
	n := a.engine.RxFailures()
	d := n - a.failures
	a.failures = n
	return d
}

func (a *engineAdapter) frameBytesInp() int {
	return a.engine.SamplesPerFrame() * a.engine.SampleSizeInp()
}

func (a *engineAdapter) frameBytesOut() int {
	return a.engine.SamplesPerFrame() * a.engine.SampleSizeOut()
}

func (a *engineAdapter) close() error {
	return a.engine.Close()
}
