package modem

import (
	"encoding/binary"
	"hash/crc32"
)

type rxState struct {
	conv    *rateConverter
	scratch []float64
	pending []float64 // base-rate samples not yet consumed

	markerProto  Protocol
	markerFrames int

	receiving bool
	protocol  Protocol
	frame     []byte
	total     int // frame bytes expected, 0 until the length byte is known

	done     [][]byte
	failures int
}

// RxProgress reports the receiver position while a transmission is being
// recorded. All fields are zero while listening.
type RxProgress struct {
	FramesToRecord      int
	FramesLeftToRecord  int
	FramesToAnalyze     int
	FramesLeftToAnalyze int
}

// Decode feeds captured PCM in the input sample format. Partial symbols are
// kept across calls. It returns false when the input cannot be used.
func (e *Engine) Decode(raw []byte) bool {
	if e.closed || !e.params.OperatingMode.Has(ModeRX) {
		return false
	}
	size := e.SampleSizeInp()
	if len(raw) == 0 || len(raw)%size != 0 {
		return false
	}

	e.rx.scratch = decodeSamples(e.rx.scratch[:0], raw, e.params.SampleFormatInp)
	samples, err := e.rx.conv.process(e.rx.scratch)
	if err != nil {
		return false
	}
	e.rx.pending = append(e.rx.pending, samples...)
	e.analyze()
	return true
}

// TakeRxData returns the oldest completed payload, or nil.
func (e *Engine) TakeRxData() []byte {
	if len(e.rx.done) == 0 {
		return nil
	}
	p := e.rx.done[0]
	e.rx.done = e.rx.done[1:]
	return p
}

// RxFailures counts transmissions dropped on a bad length or checksum.
func (e *Engine) RxFailures() int { return e.rx.failures }

func (e *Engine) RxProgress() RxProgress {
	if !e.rx.receiving {
		return RxProgress{}
	}
	n := e.params.SamplesPerFrame
	f := e.rx.protocol.FramesPerTx

	total := e.rx.total
	if total == 0 {
		total = 1 + e.params.MaxPayload() + 4
	}
	toRecord := total * f
	return RxProgress{
		FramesToRecord:      toRecord,
		FramesLeftToRecord:  max(0, toRecord-len(e.rx.pending)/n),
		FramesToAnalyze:     total,
		FramesLeftToAnalyze: total - len(e.rx.frame),
	}
}

func (e *Engine) analyze() {
	n := e.params.SamplesPerFrame
	rx := &e.rx

	for {
		if rx.receiving {
			if !e.receiveSymbol() {
				return
			}
			continue
		}

		if len(rx.pending) < n {
			return
		}
		proto, ok := e.detectMarker(rx.pending[:n])
		if ok && (rx.markerFrames == 0 || proto.ID == rx.markerProto.ID) {
			rx.markerProto = proto
			rx.markerFrames++
			rx.pending = rx.pending[n:]
			continue
		}

		if rx.markerFrames > 0 && rx.markerFrames >= rx.markerProto.FramesPerTx {
			// 标记结束, 数据从当前帧开始
			rx.receiving = true
			rx.protocol = rx.markerProto
			rx.frame = rx.frame[:0]
			rx.total = 0
			rx.markerFrames = 0
			continue
		}

		if ok {
			rx.markerProto = proto
			rx.markerFrames = 1
		} else {
			rx.markerFrames = 0
		}
		rx.pending = rx.pending[n:]
	}
}

// detectMarker finds the protocol whose marker tone dominates the frame.
func (e *Engine) detectMarker(frame []float64) (Protocol, bool) {
	n := len(frame)
	means := make(map[int]float64, 2)

	var best Protocol
	var bestPower float64
	for _, proto := range e.protocols {
		power := goertzel(frame, proto.MarkerBin)
		if amplitude(power, n) < minToneAmplitude {
			continue
		}

		mean, ok := means[proto.FreqStart]
		if !ok {
			var sum float64
			for band := 0; band < e.bands; band++ {
				for v := 0; v < bandTones; v++ {
					sum += goertzel(frame, proto.bin(band, v))
				}
			}
			mean = sum / float64(e.bands*bandTones)
			means[proto.FreqStart] = mean
		}

		if power > e.params.SoundMarkerThreshold*mean && power > bestPower {
			best, bestPower = proto, power
		}
	}
	return best, bestPower > 0
}

// receiveSymbol decodes the next symbol once its samples are available. The
// analysis window sits in the middle of the symbol, which tolerates the
// frame granularity of marker detection.
func (e *Engine) receiveSymbol() bool {
	rx := &e.rx
	n := e.params.SamplesPerFrame
	f := rx.protocol.FramesPerTx
	symLen := f * n

	s := len(rx.frame)
	start := s*symLen + (f-1)*n/2
	if len(rx.pending) < start+n {
		return false
	}
	window := rx.pending[start : start+n]

	b, level := e.demodulate(window, rx.protocol)
	if s == 0 {
		if level < minToneAmplitude/4 || !e.validLength(int(b)) {
			rx.failures++
			e.finishReceive(symLen)
			return true
		}
		rx.total = 1 + int(b) + 4
		if e.params.FixedLength() {
			rx.total = 1 + e.params.PayloadLength + 4
		}
	}
	rx.frame = append(rx.frame, b)

	if len(rx.frame) < rx.total {
		return true
	}

	body := rx.frame[:rx.total-4]
	want := binary.BigEndian.Uint32(rx.frame[rx.total-4:])
	if crc32.ChecksumIEEE(body) == want {
		size := int(body[0])
		rx.done = append(rx.done, append([]byte(nil), body[1:1+size]...))
	} else {
		rx.failures++
	}
	e.finishReceive(rx.total * symLen)
	return true
}

func (e *Engine) validLength(size int) bool {
	if e.params.FixedLength() {
		return size >= 1 && size <= e.params.PayloadLength
	}
	return size >= 1 && size <= MaxLengthVariable
}

// finishReceive drops consumed samples and returns to listening.
func (e *Engine) finishReceive(consumed int) {
	rx := &e.rx
	consumed = min(consumed, len(rx.pending))
	rx.pending = append(rx.pending[:0:0], rx.pending[consumed:]...)
	rx.receiving = false
	rx.frame = nil
	rx.total = 0
}

// demodulate picks the strongest tone per nibble band. The returned level is
// the amplitude of the strongest low nibble tone.
func (e *Engine) demodulate(window []float64, proto Protocol) (byte, float64) {
	var nibbles [2]int
	var level float64
	for half := 0; half < 2; half++ {
		best, bestScore := 0, -1.0
		for v := 0; v < bandTones; v++ {
			score := goertzel(window, proto.bin(half, v))
			if e.bands == 4 {
				score += goertzel(window, proto.bin(half+2, bandTones-1-v))
			}
			if score > bestScore {
				best, bestScore = v, score
			}
		}
		nibbles[half] = best
		if half == 0 {
			level = amplitude(goertzel(window, proto.bin(0, best)), len(window))
		}
	}
	return byte(nibbles[0] | nibbles[1]<<4), level
}
