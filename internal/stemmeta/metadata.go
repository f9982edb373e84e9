package stemmeta

import (
	"fmt"
	"strconv"
)

// Version is the metadata schema version written into every stem box.
const Version = 1

// MaxStems is the largest number of component tracks a container may hold.
const MaxStems = 8

// Entry is the display name and color of one component track. Entries are
// positional: index 0 describes the first component after the mixdown.
type Entry struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// Compressor holds the mastering compressor defaults carried in the box.
type Compressor struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Ratio      float64 `json:"ratio" yaml:"ratio"`
	OutputGain float64 `json:"output_gain" yaml:"output_gain"`
	Release    float64 `json:"release" yaml:"release"`
	Attack     float64 `json:"attack" yaml:"attack"`
	InputGain  float64 `json:"input_gain" yaml:"input_gain"`
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	HPCutoff   float64 `json:"hp_cutoff" yaml:"hp_cutoff"`
	DryWet     float64 `json:"dry_wet" yaml:"dry_wet"`
}

// Limiter holds the mastering limiter defaults carried in the box.
type Limiter struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Release   float64 `json:"release" yaml:"release"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Ceiling   float64 `json:"ceiling" yaml:"ceiling"`
}

// MasteringDSP groups the compressor and limiter settings.
type MasteringDSP struct {
	Compressor Compressor `json:"compressor" yaml:"compressor"`
	Limiter    Limiter    `json:"limiter" yaml:"limiter"`
}

// Metadata is the document stored in the container's stem box.
type Metadata struct {
	MasteringDSP MasteringDSP `json:"mastering_dsp" yaml:"mastering_dsp"`
	Version      int          `json:"version" yaml:"version"`
	Stems        []Entry      `json:"stems" yaml:"stems"`
}

// DefaultPalette names and colors the first four components.
var DefaultPalette = []Entry{
	{Name: "Drums", Color: "#009E73"},
	{Name: "Bass", Color: "#D55E00"},
	{Name: "Other", Color: "#CC79A7"},
	{Name: "Vox", Color: "#56B4E9"},
}

// PadColor is used for components beyond the default palette.
const PadColor = "#000000"

// DefaultMastering returns the mastering DSP block written when none is supplied.
func DefaultMastering() MasteringDSP {
	return MasteringDSP{
		Compressor: Compressor{
			Ratio:      3,
			OutputGain: 0.5,
			Release:    0.300000011920929,
			Attack:     0.003000000026077032,
			InputGain:  0.5,
			Threshold:  0,
			HPCutoff:   300,
			DryWet:     50,
		},
		Limiter: Limiter{
			Release:   0.05000000074505806,
			Threshold: 0,
			Ceiling:   -0.3499999940395355,
		},
	}
}

// Default returns metadata with default mastering and the default palette
// padded to n entries.
func Default(n int) Metadata {
	return New(nil, n)
}

// New returns metadata for n components, padding or truncating entries.
func New(entries []Entry, n int) Metadata {
	return Metadata{
		MasteringDSP: DefaultMastering(),
		Version:      Version,
		Stems:        Pad(entries, n),
	}
}

// Pad returns exactly n entries: the given ones first, then the default
// palette from the same position, then "Stem_<k>" entries colored PadColor.
// Longer lists are truncated to n.
func Pad(entries []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(entries):
			out = append(out, entries[i])
		case i < len(DefaultPalette):
			out = append(out, DefaultPalette[i])
		default:
			out = append(out, Entry{Name: "Stem_" + strconv.Itoa(i+1), Color: PadColor})
		}
	}
	return out
}

// Slice returns a copy of m whose stems are entries [from, to).
func (m Metadata) Slice(from, to int) Metadata {
	if from < 0 {
		from = 0
	}
	if to > len(m.Stems) {
		to = len(m.Stems)
	}
	out := m
	if from >= to {
		out.Stems = []Entry{}
		return out
	}
	out.Stems = append([]Entry(nil), m.Stems[from:to]...)
	return out
}

// Validate checks entry colors and stem count.
func (m Metadata) Validate() error {
	if len(m.Stems) > MaxStems {
		return fmt.Errorf("%d stems exceed the maximum of %d", len(m.Stems), MaxStems)
	}
	for i, e := range m.Stems {
		if !validColor(e.Color) {
			return fmt.Errorf("stem %d (%s): invalid color %q (want #RRGGBB)", i+1, e.Name, e.Color)
		}
	}
	return nil
}

func validColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
