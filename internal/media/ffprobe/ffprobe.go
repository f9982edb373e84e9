package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"stemforge/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"`
	CodecTag      string            `json:"codec_tag_string"`
	Duration      string            `json:"duration"`
	DurationTS    int64             `json:"duration_ts"`
	TimeBase      string            `json:"time_base"`
	BitRate       string            `json:"bit_rate"`
	SampleRate    string            `json:"sample_rate"`
	SampleFmt     string            `json:"sample_fmt"`
	Channels      int               `json:"channels"`
	ChannelLayout string            `json:"channel_layout"`
	Disposition   map[string]int    `json:"disposition"`
	Tags          map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string            `json:"filename"`
	NBStreams  int               `json:"nb_streams"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Args returns the ffprobe argument list used by Inspect.
func Args(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
}

// Parse decodes an ffprobe JSON payload.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Inspect executes ffprobe against the provided path through runner and decodes
// the JSON response. A nil runner uses services.ExecRunner.
func Inspect(ctx context.Context, runner services.Runner, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}

	output, err := runner.Run(ctx, services.Command{Tool: "ffprobe", Binary: binary, Args: Args(path)})
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// AudioStreams returns the audio streams in container order.
func (r Result) AudioStreams() []Stream {
	var out []Stream
	for _, stream := range r.Streams {
		if stream.IsAudio() {
			out = append(out, stream)
		}
	}
	return out
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return len(r.AudioStreams())
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// IsAudio reports whether the stream carries audio.
func (s Stream) IsAudio() bool {
	return strings.EqualFold(s.CodecType, "audio")
}

// SampleRateHz returns the stream sample rate, or 0 when unavailable.
func (s Stream) SampleRateHz() int {
	rate := parseFloat(s.SampleRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int(rate)
}

// DurationSeconds returns the stream duration in seconds, or 0 when unavailable.
func (s Stream) DurationSeconds() float64 {
	d := parseFloat(s.Duration)
	if math.IsNaN(d) {
		return 0
	}
	return d
}

// Samples estimates the stream length in sample frames. duration_ts is used
// directly when the time base is 1/sample_rate (the usual case for MP4 audio).
func (s Stream) Samples() int64 {
	rate := s.SampleRateHz()
	if rate <= 0 {
		return 0
	}
	if s.DurationTS > 0 && s.TimeBase == "1/"+strconv.Itoa(rate) {
		return s.DurationTS
	}
	return int64(math.Round(s.DurationSeconds() * float64(rate)))
}

// HandlerName returns the track handler name tag, if any.
func (s Stream) HandlerName() string {
	for key, value := range s.Tags {
		if strings.EqualFold(key, "handler_name") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// Default reports whether the stream carries the default disposition.
func (s Stream) Default() bool {
	return s.Disposition["default"] == 1
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
