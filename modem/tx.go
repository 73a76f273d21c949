package modem

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

type txState struct {
	frame    []byte
	protocol Protocol
	volume   int
}

// buildFrame lays out [len][payload][crc32]. In fixed length mode the payload
// is zero padded to payloadLength.
func buildFrame(payload []byte, payloadLength int) []byte {
	n := len(payload)
	if payloadLength > 0 {
		n = payloadLength
	}
	frame := make([]byte, 1+n, 1+n+4)
	frame[0] = byte(len(payload))
	copy(frame[1:], payload)
	return binary.BigEndian.AppendUint32(frame, crc32.ChecksumIEEE(frame))
}

// Init schedules payload for transmission with the given protocol and volume
// in [0, 100]. An empty payload cancels any pending transmission.
func (e *Engine) Init(payload []byte, id ProtocolID, volume int) error {
	if e.closed {
		return ErrClosed
	}
	if !e.params.OperatingMode.Has(ModeTX) {
		return fmt.Errorf("%w: tx", ErrModeDisabled)
	}
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, volume)
	}
	if len(payload) > e.params.MaxPayload() {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLong, len(payload), e.params.MaxPayload())
	}
	proto, err := e.protocol(id)
	if err != nil {
		return err
	}

	if len(payload) == 0 {
		e.tx = txState{}
		return nil
	}
	e.tx = txState{
		frame:    buildFrame(payload, e.params.PayloadLength),
		protocol: proto,
		volume:   volume,
	}
	return nil
}

// TxHasData reports whether a payload is waiting to be encoded.
func (e *Engine) TxHasData() bool {
	return !e.closed && len(e.tx.frame) > 0
}

// Encode renders the pending payload as one complete waveform in the output
// rate and sample format, and clears the pending payload.
func (e *Engine) Encode() ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if !e.TxHasData() {
		return nil, ErrNoTxData
	}
	tx := e.tx
	e.tx = txState{}

	n := e.params.SamplesPerFrame
	symLen := tx.protocol.FramesPerTx * n
	wave := make([]float64, (markerSymbols+len(tx.frame))*symLen)

	level := float64(tx.volume) / 100
	for s := 0; s < markerSymbols; s++ {
		pos := s * symLen
		addTone(wave[pos:pos+symLen], pos, tx.protocol.MarkerBin, n, level)
	}

	toneAmp := level / float64(e.bands)
	for i, b := range tx.frame {
		pos := (markerSymbols + i) * symLen
		sym := wave[pos : pos+symLen]
		for band, v := range e.symbolTones(b) {
			addTone(sym, pos, tx.protocol.bin(band, v), n, toneAmp)
		}
	}

	wave, err := convertAll(wave, e.params.SampleRate, e.params.SampleRateOut)
	if err != nil {
		return nil, err
	}
	return encodeSamples(wave, e.params.SampleFormatOut), nil
}

// symbolTones returns the tone index per band for one byte.
func (e *Engine) symbolTones(b byte) []int {
	lo, hi := int(b&0x0f), int(b>>4)
	if e.bands == 4 {
		return []int{lo, hi, bandTones - 1 - lo, bandTones - 1 - hi}
	}
	return []int{lo, hi}
}
