package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Export formats. The canonical internal interchange format is float32
// WAV so chained jobs do not accumulate quantization error.
const (
	FormatWAV16  = "wav16"
	FormatWAV24  = "wav24"
	FormatWAV32F = "wav32f"
)

// ContentTypeWAV is the media type recorded on stored audio artifacts.
const ContentTypeWAV = "audio/wav"

var exportFormats = map[string]struct{}{
	FormatWAV16:  {},
	FormatWAV24:  {},
	FormatWAV32F: {},
}

const (
	waveFormatPCM       = 1
	waveFormatIEEEFloat = 3
)

// EncodeWAV serializes a buffer into a WAV container. Encoding is fully
// deterministic: the same buffer and format always yield identical
// bytes.
func EncodeWAV(buf *Buffer, format string) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if _, ok := exportFormats[format]; !ok {
		return nil, &UnsupportedFormatError{Format: format}
	}

	var (
		bitsPerSample uint16
		audioFormat   uint16
	)
	switch format {
	case FormatWAV16:
		bitsPerSample, audioFormat = 16, waveFormatPCM
	case FormatWAV24:
		bitsPerSample, audioFormat = 24, waveFormatPCM
	case FormatWAV32F:
		bitsPerSample, audioFormat = 32, waveFormatIEEEFloat
	}

	channels := buf.Channels()
	frames := buf.Frames()
	bytesPerSample := int(bitsPerSample) / 8
	blockAlign := channels * bytesPerSample
	dataSize := frames * blockAlign

	out := make([]byte, 0, 44+dataSize)
	out = append(out, 'R', 'I', 'F', 'F')
	out = binary.LittleEndian.AppendUint32(out, uint32(36+dataSize))
	out = append(out, 'W', 'A', 'V', 'E')

	out = append(out, 'f', 'm', 't', ' ')
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, audioFormat)
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(buf.SampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(buf.SampleRate*blockAlign))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, bitsPerSample)

	out = append(out, 'd', 'a', 't', 'a')
	out = binary.LittleEndian.AppendUint32(out, uint32(dataSize))

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			sample := clamp(buf.Samples[c][i])
			switch format {
			case FormatWAV16:
				out = binary.LittleEndian.AppendUint16(out, uint16(int16(math.Round(sample*32767))))
			case FormatWAV24:
				v := int32(math.Round(sample * 8388607))
				out = append(out, byte(v), byte(v>>8), byte(v>>16))
			case FormatWAV32F:
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(sample)))
			}
		}
	}
	return out, nil
}

// DecodeWAV parses a WAV container into a buffer. PCM16, PCM24, and
// float32 payloads are accepted.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 44 {
		return nil, errors.New("wav: file too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("wav: missing RIFF/WAVE header")
	}

	var (
		audioFormat   uint16
		channels      int
		sampleRate    int
		bitsPerSample uint16
		payload       []byte
		haveFmt       bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return nil, fmt.Errorf("wav: chunk %q overruns file", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("wav: fmt chunk too short")
			}
			audioFormat = binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			payload = data[body : body+chunkSize]
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if !haveFmt {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if payload == nil {
		return nil, errors.New("wav: missing data chunk")
	}
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid fmt (channels=%d rate=%d)", channels, sampleRate)
	}

	bytesPerSample := int(bitsPerSample) / 8
	if bytesPerSample == 0 {
		return nil, errors.New("wav: invalid bits per sample")
	}
	frames := len(payload) / (channels * bytesPerSample)
	if frames == 0 {
		return nil, errors.New("wav: empty data chunk")
	}

	buf := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			pos := (i*channels + c) * bytesPerSample
			switch {
			case audioFormat == waveFormatPCM && bitsPerSample == 16:
				v := int16(binary.LittleEndian.Uint16(payload[pos:]))
				buf.Samples[c][i] = float64(v) / 32767
			case audioFormat == waveFormatPCM && bitsPerSample == 24:
				v := int32(payload[pos]) | int32(payload[pos+1])<<8 | int32(payload[pos+2])<<16
				if v&0x800000 != 0 {
					v |= ^int32(0xFFFFFF)
				}
				buf.Samples[c][i] = float64(v) / 8388607
			case audioFormat == waveFormatIEEEFloat && bitsPerSample == 32:
				bits := binary.LittleEndian.Uint32(payload[pos:])
				buf.Samples[c][i] = float64(math.Float32frombits(bits))
			default:
				return nil, fmt.Errorf("wav: unsupported encoding (format=%d bits=%d)", audioFormat, bitsPerSample)
			}
		}
	}
	return buf, nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
