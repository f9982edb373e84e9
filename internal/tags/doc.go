// Package tags maps descriptive metadata between source audio files and the
// ilst atoms of a stem container.
//
// Extraction reads Vorbis comments, RIFF INFO and AIFF text chunks, MP4 atoms
// and ID3v2 frames into one fixed vocabulary. Apply writes that vocabulary
// back as native and freeform iTunes atoms and always marks the container
// with TAUT=STEM.
package tags
