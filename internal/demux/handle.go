package demux

import (
	"path/filepath"
	"strconv"
	"strings"

	"stemforge/internal/stemmeta"
)

// StreamInfo describes one audio stream of a stem container.
type StreamInfo struct {
	Index      int     `json:"index"`
	Codec      string  `json:"codec"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration"`
	Samples    int64   `json:"samples"`
	Title      string  `json:"title"`
	Enabled    bool    `json:"enabled"`
}

// Handle is an opened container: its stream table and decoded stem box.
// It is never modified after Probe returns it.
type Handle struct {
	Path    string       `json:"path"`
	Streams []StreamInfo `json:"streams"`
	// Metadata is empty (no stems) when the container has no stem box.
	Metadata    stemmeta.Metadata `json:"metadata"`
	HasMetadata bool              `json:"has_metadata"`
	// SizeBytes and BitRate are container-level figures; zero when unknown.
	SizeBytes int64 `json:"size_bytes"`
	BitRate   int64 `json:"bit_rate"`
}

// StemCount returns the number of component streams, excluding the mixdown.
func (h *Handle) StemCount() int {
	return max(len(h.Streams)-1, 0)
}

// Titles returns stream titles in stream order.
func (h *Handle) Titles() []string {
	out := make([]string, len(h.Streams))
	for i, s := range h.Streams {
		out[i] = s.Title
	}
	return out
}

// TrackName is the container file name without its .stem<ext> ending.
func TrackName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if trimmed, ok := strings.CutSuffix(base, ".stem"+ext); ok {
		return trimmed
	}
	return strings.TrimSuffix(base, ext)
}

// streamTitle names stream i: the track name for the mixdown and
// "<track> {<stem name>}" for components. Without stem entries the
// handler name is used, then a positional name.
func streamTitle(track string, i int, meta stemmeta.Metadata, hasMeta bool, handler string) string {
	if hasMeta {
		if i == 0 {
			return track
		}
		if i-1 < len(meta.Stems) {
			return track + " {" + meta.Stems[i-1].Name + "}"
		}
	}
	if handler != "" {
		return handler
	}
	if i == 0 {
		return track
	}
	return track + " {" + strconv.Itoa(i) + "}"
}
