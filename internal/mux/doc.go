// Package mux builds stem containers.
//
// An Encoder normalizes the mixdown and every component through a
// transcode.Transcoder, writes them into one MP4 with a Muxer (MP4Box in
// production) together with the base64 stem metadata box, and tags the
// result. Jobs with more than four components can be split into parts.
package mux
