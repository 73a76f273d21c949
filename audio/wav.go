package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidWAV = errors.New("invalid wav data")

// wavHeader WAV文件头结构 (PCM, 单声道, 16位)
type wavHeader struct {
	RiffMark      [4]byte // "RIFF"
	FileSize      uint32  // 文件总大小-8
	WaveMark      [4]byte // "WAVE"
	FmtMark       [4]byte // "fmt "
	FmtSize       uint32  // fmt chunk大小(16)
	AudioFormat   uint16  // 1=PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16 // NumChannels * BitsPerSample/8
	BitsPerSample uint16 // 16
	DataMark      [4]byte // "data"
	DataSize      uint32  // 原始数据大小
}

// WriteWAV writes mono 16-bit PCM samples as a complete WAV stream.
func WriteWAV(w io.Writer, sampleRate int, samples []int16) error {
	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		RiffMark:      [4]byte{'R', 'I', 'F', 'F'},
		FileSize:      36 + dataSize,
		WaveMark:      [4]byte{'W', 'A', 'V', 'E'},
		FmtMark:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		BitsPerSample: 16,
		DataMark:      [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	header.ByteRate = header.SampleRate * uint32(header.NumChannels) * uint32(header.BitsPerSample) / 8
	header.BlockAlign = header.NumChannels * header.BitsPerSample / 8

	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// ReadWAV reads a mono 16-bit PCM WAV stream. Chunks other than "fmt " and
// "data" are skipped.
func ReadWAV(r io.Reader) (sampleRate int, samples []int16, err error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, nil, fmt.Errorf("%w: missing RIFF/WAVE marks", ErrInvalidWAV)
	}

	var haveFmt bool
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			if f.AudioFormat != 1 || f.NumChannels != 1 || f.BitsPerSample != 16 {
				return 0, nil, fmt.Errorf("%w: need mono 16-bit PCM, got format=%d channels=%d bits=%d",
					ErrInvalidWAV, f.AudioFormat, f.NumChannels, f.BitsPerSample)
			}
			if extra := int64(chunk.Size) - 16; extra > 0 {
				if _, err := io.CopyN(io.Discard, r, extra); err != nil {
					return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
				}
			}
			sampleRate = int(f.SampleRate)
			haveFmt = true
		case "data":
			if !haveFmt {
				return 0, nil, fmt.Errorf("%w: data before fmt chunk", ErrInvalidWAV)
			}
			samples = make([]int16, chunk.Size/2)
			if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
				return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			return sampleRate, samples, nil
		default:
			// RIFF chunks are word aligned
			size := int64(chunk.Size) + int64(chunk.Size&1)
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return 0, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
		}
	}
}
