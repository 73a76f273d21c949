package modem

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestEngine(t testing.TB, mutate func(*Parameters)) *Engine {
	t.Helper()
	p := DefaultParameters()
	p.PayloadLength = 16
	if mutate != nil {
		mutate(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	return e
}

// feed passes raw to the engine in chunks of size bytes and collects payloads.
func feed(t testing.TB, e *Engine, raw []byte, size int) [][]byte {
	t.Helper()
	var got [][]byte
	for len(raw) > 0 {
		n := min(size, len(raw))
		require.True(t, e.Decode(raw[:n]))
		raw = raw[n:]
		for p := e.TakeRxData(); p != nil; p = e.TakeRxData() {
			got = append(got, p)
		}
	}
	return got
}

func TestRoundTripFormats(t *testing.T) {
	tests := []struct {
		name string
		fmt  SampleFormat
	}{
		{"i16", SampleFormatI16},
		{"f32", SampleFormatF32},
		{"u8", SampleFormatU8},
		{"u16", SampleFormatU16},
		{"i8", SampleFormatI8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, func(p *Parameters) {
				p.SampleFormatInp = tt.fmt
				p.SampleFormatOut = tt.fmt
			})

			payload := []byte("hello, sonic")
			require.NoError(t, e.Init(payload, ProtocolAudibleFast, DefaultVolume))
			require.True(t, e.TxHasData())

			wave, err := e.Encode()
			require.NoError(t, err)
			assert.False(t, e.TxHasData())
			assert.Zero(t, len(wave)%tt.fmt.Size())

			frameBytes := e.SamplesPerFrame() * e.SampleSizeInp()
			got := feed(t, e, wave, frameBytes)
			require.Len(t, got, 1)
			assert.Equal(t, payload, got[0])
			assert.Zero(t, e.RxFailures())
		})
	}
}

func TestRoundTripWithLeadingSilenceAndOddChunks(t *testing.T) {
	e := newTestEngine(t, func(p *Parameters) { p.OperatingMode |= ModeUseDSS })

	payload := []byte{0x00, 0xff, 0x5a, 0xa5}
	require.NoError(t, e.Init(payload, ProtocolAudibleFastest, 80))
	wave, err := e.Encode()
	require.NoError(t, err)

	// 313 samples of silence shift the symbols off the frame grid
	raw := make([]byte, 313*e.SampleSizeInp())
	samples := decodeSamples(nil, wave, SampleFormatI16)
	raw = append(raw, encodeSamples(samples, SampleFormatF32)...)
	raw = append(raw, make([]byte, 4*e.SamplesPerFrame()*4)...)

	got := feed(t, e, raw, 4*700)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestRoundTripVariableLength(t *testing.T) {
	e := newTestEngine(t, func(p *Parameters) {
		p.PayloadLength = -1
		p.SampleFormatInp = SampleFormatI16
	})

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	require.NoError(t, e.Init(payload, ProtocolUltrasoundFast, DefaultVolume))
	wave, err := e.Encode()
	require.NoError(t, err)

	got := feed(t, e, wave, 2048)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestRoundTripResampled(t *testing.T) {
	tx := newTestEngine(t, func(p *Parameters) { p.SampleRateOut = 44100 })
	rx := newTestEngine(t, func(p *Parameters) {
		p.SampleRateInp = 44100
		p.SampleFormatInp = SampleFormatI16
	})

	payload := []byte("resampled")
	require.NoError(t, tx.Init(payload, ProtocolAudibleNormal, DefaultVolume))
	wave, err := tx.Encode()
	require.NoError(t, err)

	// trailing silence pushes the tail through the capture resampler
	wave = append(wave, make([]byte, 8192*2)...)

	got := feed(t, rx, wave, 1024)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(rt, "payload")
		id := rapid.SampledFrom([]ProtocolID{
			ProtocolAudibleFastest, ProtocolUltrasoundFastest,
		}).Draw(rt, "protocol")
		volume := rapid.IntRange(10, 100).Draw(rt, "volume")
		chunk := rapid.IntRange(1, 4096).Draw(rt, "chunk") * 2

		e := newTestEngine(t, func(p *Parameters) { p.SampleFormatInp = SampleFormatI16 })
		if err := e.Init(payload, id, volume); err != nil {
			rt.Fatalf("init: %v", err)
		}
		wave, err := e.Encode()
		if err != nil {
			rt.Fatalf("encode: %v", err)
		}

		var got [][]byte
		for raw := wave; len(raw) > 0; {
			n := min(chunk, len(raw))
			e.Decode(raw[:n])
			raw = raw[n:]
			if p := e.TakeRxData(); p != nil {
				got = append(got, p)
			}
		}
		if len(got) != 1 || string(got[0]) != string(payload) {
			rt.Fatalf("got %v, want %v", got, payload)
		}
	})
}

func TestSilenceDecodesNothing(t *testing.T) {
	e := newTestEngine(t, nil)

	silence := make([]byte, 100*e.SamplesPerFrame()*e.SampleSizeInp())
	assert.Empty(t, feed(t, e, silence, e.SamplesPerFrame()*e.SampleSizeInp()))
	assert.Zero(t, e.RxFailures())
	assert.Equal(t, RxProgress{}, e.RxProgress())
}

// quietNoise returns n samples of uniform noise well below the tone floor.
func quietNoise(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (r.Float64()*2 - 1) * 0.01
	}
	return out
}

func TestIdleFramesBeforeTransmission(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Parameters)
	}{
		{"fixed", nil},
		{"variable", func(p *Parameters) { p.PayloadLength = -1 }},
		{"dss", func(p *Parameters) { p.OperatingMode |= ModeUseDSS }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.mutate)
			n := e.SamplesPerFrame()
			r := rand.New(rand.NewPCG(1, 2))

			payload := []byte("after the quiet")
			require.NoError(t, e.Init(payload, ProtocolAudibleFast, DefaultVolume))
			wave, err := e.Encode()
			require.NoError(t, err)

			// whole frames of idle capture, then the waveform, then idle again
			var samples []float64
			samples = append(samples, make([]float64, 10*n)...)
			samples = append(samples, quietNoise(r, 10*n)...)
			samples = append(samples, decodeSamples(nil, wave, SampleFormatI16)...)
			samples = append(samples, quietNoise(r, 8*n)...)

			var got [][]byte
			require.NotPanics(t, func() {
				got = feed(t, e, encodeSamples(samples, SampleFormatF32), n*e.SampleSizeInp())
			})
			require.Len(t, got, 1)
			assert.Equal(t, payload, got[0])
			assert.Zero(t, e.RxFailures())
		})
	}
}

func TestArbitraryInputNeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.SampledFrom([]int{-1, 1, 16, 64}).Draw(rt, "payloadLength")
		dss := rapid.Bool().Draw(rt, "dss")
		p := DefaultParameters()
		p.PayloadLength = length
		p.SampleFormatInp = SampleFormatI16
		if dss {
			p.OperatingMode |= ModeUseDSS
		}
		e, err := New(p)
		require.NoError(rt, err)

		chunks := rapid.IntRange(1, 12).Draw(rt, "chunks")
		for i := range chunks {
			raw := rapid.SliceOfN(rapid.Byte(), 2, 4096).Draw(rt, fmt.Sprintf("chunk%d", i))
			raw = raw[:len(raw)&^1]
			e.Decode(raw)
			e.TakeRxData()
			e.RxProgress()
		}
	})
}

func TestMismatchedLengthFailsChecksum(t *testing.T) {
	tx := newTestEngine(t, nil)
	rx := newTestEngine(t, func(p *Parameters) {
		p.PayloadLength = 8
		p.SampleFormatInp = SampleFormatI16
	})

	require.NoError(t, tx.Init([]byte("abcde"), ProtocolAudibleFastest, DefaultVolume))
	wave, err := tx.Encode()
	require.NoError(t, err)

	assert.Empty(t, feed(t, rx, wave, 1024))
	assert.Equal(t, 1, rx.RxFailures())
}

func TestRxProgress(t *testing.T) {
	e := newTestEngine(t, func(p *Parameters) { p.SampleFormatInp = SampleFormatI16 })
	require.NoError(t, e.Init([]byte("progress"), ProtocolAudibleFast, DefaultVolume))
	wave, err := e.Encode()
	require.NoError(t, err)

	// marker plus a few data symbols
	frame := e.SamplesPerFrame() * e.SampleSizeInp()
	feed(t, e, wave[:(2*6+10)*frame], frame)

	prog := e.RxProgress()
	total := 1 + 16 + 4
	assert.Equal(t, total*6, prog.FramesToRecord)
	assert.Equal(t, total, prog.FramesToAnalyze)
	assert.Less(t, prog.FramesLeftToAnalyze, total)
	assert.Less(t, prog.FramesLeftToRecord, prog.FramesToRecord)
}

func TestInitErrors(t *testing.T) {
	e := newTestEngine(t, nil)

	assert.ErrorIs(t, e.Init(make([]byte, 17), DefaultProtocol, 50), ErrPayloadTooLong)
	assert.ErrorIs(t, e.Init([]byte("x"), DefaultProtocol, 101), ErrInvalidVolume)
	assert.ErrorIs(t, e.Init([]byte("x"), ProtocolID(42), 50), ErrUnknownProtocol)

	_, err := e.Encode()
	assert.ErrorIs(t, err, ErrNoTxData)

	require.NoError(t, e.Init([]byte("x"), DefaultProtocol, 50))
	require.NoError(t, e.Init(nil, DefaultProtocol, 50))
	assert.False(t, e.TxHasData(), "empty payload cancels")

	rxOnly := newTestEngine(t, func(p *Parameters) {
		p.OperatingMode = ModeRX
		p.SampleFormatOut = SampleFormatUndefined
	})
	assert.ErrorIs(t, rxOnly.Init([]byte("x"), DefaultProtocol, 50), ErrModeDisabled)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.False(t, e.Decode(nil))
	assert.False(t, e.Decode([]byte{1, 2, 3}), "not a whole f32 sample")

	txOnly := newTestEngine(t, func(p *Parameters) {
		p.OperatingMode = ModeTX
		p.SampleFormatInp = SampleFormatUndefined
	})
	assert.False(t, txOnly.Decode(make([]byte, 4)))

	require.NoError(t, e.Close())
	assert.False(t, e.Decode(make([]byte, 4)))
	assert.ErrorIs(t, e.Init([]byte("x"), DefaultProtocol, 50), ErrClosed)
	assert.False(t, e.TxHasData())
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Parameters)
	}{
		{"payload too long", func(p *Parameters) { p.PayloadLength = MaxLengthFixed + 1 }},
		{"odd frame", func(p *Parameters) { p.SamplesPerFrame = 511 }},
		{"threshold", func(p *Parameters) { p.SoundMarkerThreshold = 0 }},
		{"no mode", func(p *Parameters) { p.OperatingMode = ModeUseDSS }},
		{"input rate", func(p *Parameters) { p.SampleRateInp = 500 }},
		{"output rate", func(p *Parameters) { p.SampleRateOut = SampleRateMax + 1 }},
		{"input format", func(p *Parameters) { p.SampleFormatInp = SampleFormatUndefined }},
		{"output format", func(p *Parameters) { p.SampleFormatOut = SampleFormatUndefined }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			_, err := New(p)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestSmallFrameDropsUltrasound(t *testing.T) {
	e := newTestEngine(t, func(p *Parameters) { p.SamplesPerFrame = 256 })
	assert.ErrorIs(t, e.Init([]byte("x"), ProtocolUltrasoundFast, 50), ErrUnknownProtocol)
}

func TestProtocolLookup(t *testing.T) {
	p, err := ProtocolByName("[u] fast")
	require.NoError(t, err)
	assert.Equal(t, ProtocolUltrasoundFast, p.ID)

	_, err = ProtocolByID(-1)
	assert.ErrorIs(t, err, ErrUnknownProtocol)
	assert.Len(t, Protocols(), 6)

	for _, p := range Protocols() {
		assert.GreaterOrEqual(t, p.FramesPerTx, 3, p.Name)
	}
}
