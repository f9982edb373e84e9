// Package config loads, normalizes, and validates stemforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for the
// external tool binaries (STEMFORGE_FFMPEG, STEMFORGE_FFPROBE,
// STEMFORGE_MP4BOX). The Config type is threaded through command wiring so
// transcoder, muxer and demuxer construction read every knob from one place.
package config
