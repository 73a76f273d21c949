package modem

import (
	"fmt"
	"strings"
)

// ProtocolID 传输协议编号
type ProtocolID int

const (
	ProtocolAudibleNormal ProtocolID = iota
	ProtocolAudibleFast
	ProtocolAudibleFastest
	ProtocolUltrasoundNormal
	ProtocolUltrasoundFast
	ProtocolUltrasoundFastest

	DefaultProtocol = ProtocolAudibleFast
)

// Protocol describes the tone layout of one transmission mode. Frequencies
// are FFT bin indices at the base sample rate and frame size.
type Protocol struct {
	ID          ProtocolID
	Name        string
	FreqStart   int // first data bin
	FramesPerTx int // frames per symbol, at least 3
	MarkerBin   int
}

// bandTones is the number of tones per band, one nibble.
const bandTones = 16

var protocols = []Protocol{
	{ProtocolAudibleNormal, "Normal", 40, 9, 34},
	{ProtocolAudibleFast, "Fast", 40, 6, 35},
	{ProtocolAudibleFastest, "Fastest", 40, 3, 36},
	{ProtocolUltrasoundNormal, "[U] Normal", 180, 9, 176},
	{ProtocolUltrasoundFast, "[U] Fast", 180, 6, 177},
	{ProtocolUltrasoundFastest, "[U] Fastest", 180, 3, 178},
}

// Protocols returns the protocol table ordered by id.
func Protocols() []Protocol {
	return append([]Protocol(nil), protocols...)
}

// ProtocolByID looks up a protocol.
func ProtocolByID(id ProtocolID) (Protocol, error) {
	if id < 0 || int(id) >= len(protocols) {
		return Protocol{}, fmt.Errorf("%w: %d", ErrUnknownProtocol, id)
	}
	return protocols[id], nil
}

// ProtocolByName looks up a protocol by case-insensitive name.
func ProtocolByName(name string) (Protocol, error) {
	for _, p := range protocols {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Protocol{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
}

// bin returns the bin of tone v in band b.
func (p Protocol) bin(band, v int) int {
	return p.FreqStart + band*bandTones + v
}

// lastBin is the highest bin the protocol uses with the given band count.
func (p Protocol) lastBin(bands int) int {
	return p.bin(bands-1, bandTones-1)
}
