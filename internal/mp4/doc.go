// Package mp4 reads and rewrites the parts of an ISO base media file that a
// stem container cares about: the track table, the moov/udta user-data
// boxes and the iTunes-style moov/udta/meta/ilst tag list.
//
// Open loads only the moov box into memory; every other top-level box
// (notably mdat) is streamed through on Save. When the rewritten moov changes
// size, stco/co64 chunk offsets that point past it are shifted so the media
// data stays addressable.
//
// Atom names use the raw 0xA9 byte, so the title atom is "\xa9nam".
package mp4
