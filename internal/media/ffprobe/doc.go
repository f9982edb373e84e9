// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties, tags and disposition
//   - Format: container-level metadata (duration, size, bitrate)
//
// Primary entry points:
//   - Inspect: executes ffprobe through a services.Runner and returns a Result
//   - Parse: decodes a captured JSON payload
//
// Helper methods on Stream convert sample rate and duration strings and
// estimate the length of an audio stream in sample frames.
package ffprobe
