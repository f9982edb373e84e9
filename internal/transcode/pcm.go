package transcode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// PCMFormat names a raw little-endian sample layout exchanged with ffmpeg.
type PCMFormat string

const (
	FormatF32LE PCMFormat = "f32le"
	FormatF64LE PCMFormat = "f64le"
	FormatS16LE PCMFormat = "s16le"
)

// ParsePCMFormat validates a format name; empty selects f32le.
func ParsePCMFormat(value string) (PCMFormat, error) {
	switch f := PCMFormat(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatF32LE, nil
	case FormatF32LE, FormatF64LE, FormatS16LE:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported pcm format %q", value)
	}
}

// BytesPerSample returns the width of one sample.
func (f PCMFormat) BytesPerSample() int {
	switch f {
	case FormatF64LE:
		return 8
	case FormatS16LE:
		return 2
	default:
		return 4
	}
}

// Frames converts raw interleaved PCM into frames of channels samples each.
// Samples of s16le are scaled into [-1, 1) by 1/32768. A trailing partial
// frame is dropped.
func Frames(raw []byte, format PCMFormat, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	width := format.BytesPerSample()
	frameBytes := width * channels
	count := len(raw) / frameBytes
	frames := make([][]float32, count)
	flat := make([]float32, count*channels)
	for i := range frames {
		frame := flat[i*channels : (i+1)*channels : (i+1)*channels]
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			at := raw[base+ch*width:]
			switch format {
			case FormatF64LE:
				frame[ch] = float32(math.Float64frombits(binary.LittleEndian.Uint64(at)))
			case FormatS16LE:
				frame[ch] = float32(int16(binary.LittleEndian.Uint16(at))) / 32768
			default:
				frame[ch] = math.Float32frombits(binary.LittleEndian.Uint32(at))
			}
		}
		frames[i] = frame
	}
	return frames, nil
}

// F32LE encodes frames as interleaved little-endian float32.
func F32LE(frames [][]float32) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n*4)
	for _, f := range frames {
		for _, s := range f {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s))
		}
	}
	return out
}

// Encode converts frames into raw PCM of the given format. s16le samples are
// scaled by 32768 and clipped.
func Encode(frames [][]float32, format PCMFormat) []byte {
	switch format {
	case FormatF64LE:
		var out []byte
		for _, f := range frames {
			for _, s := range f {
				out = binary.LittleEndian.AppendUint64(out, math.Float64bits(float64(s)))
			}
		}
		return out
	case FormatS16LE:
		var out []byte
		for _, f := range frames {
			for _, s := range f {
				v := math.Round(float64(s) * 32768)
				v = math.Max(-32768, math.Min(32767, v))
				out = binary.LittleEndian.AppendUint16(out, uint16(int16(v)))
			}
		}
		return out
	default:
		return F32LE(frames)
	}
}
