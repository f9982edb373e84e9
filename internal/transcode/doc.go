// Package transcode adapts ffmpeg for the stem codec.
//
// Normalize turns lossless PCM-family inputs (WAV, AIFF, FLAC) into MP4
// audio beside the input and passes MP4-family files through untouched.
// DecodePCM reads a single container stream as raw little-endian PCM, and
// EncodePCM writes decoded frames back out as a standalone audio file.
// The helpers in pcm.go convert between raw PCM and float32 frames.
package transcode
