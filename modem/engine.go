package modem

import "fmt"

const (
	// markerSymbols is the length of the start marker in symbols.
	markerSymbols = 2
	// minToneAmplitude is the quietest marker tone the receiver accepts.
	minToneAmplitude = 0.005
)

// Engine is a tone modem. A payload is framed as
// [len][payload][crc32], every byte sent as one symbol of two nibble tones,
// preceded by a start marker. An Engine is not safe for concurrent use.
type Engine struct {
	params    Parameters
	bands     int
	protocols []Protocol // protocols that fit the frame size
	closed    bool

	tx txState
	rx rxState
}

// New creates an engine, validating p.
func New(p Parameters) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{params: p, bands: 2}
	if p.OperatingMode.Has(ModeUseDSS) {
		e.bands = 4
	}

	nyquistBin := p.SamplesPerFrame / 2
	for _, proto := range protocols {
		if proto.lastBin(e.bands) < nyquistBin && proto.MarkerBin < nyquistBin {
			e.protocols = append(e.protocols, proto)
		}
	}
	if len(e.protocols) == 0 {
		return nil, fmt.Errorf("%w: no protocol fits %d samples per frame", ErrInvalidParameters, p.SamplesPerFrame)
	}

	if p.OperatingMode.Has(ModeRX) {
		conv, err := newRateConverter(p.SampleRateInp, p.SampleRate)
		if err != nil {
			return nil, err
		}
		e.rx.conv = conv
	}
	return e, nil
}

func (e *Engine) Parameters() Parameters { return e.params }

func (e *Engine) SamplesPerFrame() int { return e.params.SamplesPerFrame }

// SampleSizeInp returns bytes per captured sample.
func (e *Engine) SampleSizeInp() int { return e.params.SampleFormatInp.Size() }

// SampleSizeOut returns bytes per played sample.
func (e *Engine) SampleSizeOut() int { return e.params.SampleFormatOut.Size() }

func (e *Engine) protocol(id ProtocolID) (Protocol, error) {
	for _, p := range e.protocols {
		if p.ID == id {
			return p, nil
		}
	}
	return Protocol{}, fmt.Errorf("%w: %d not available with %d samples per frame",
		ErrUnknownProtocol, id, e.params.SamplesPerFrame)
}

// Close releases the engine buffers. Further calls fail with ErrClosed.
func (e *Engine) Close() error {
	e.closed = true
	e.tx = txState{}
	e.rx = rxState{}
	return nil
}
