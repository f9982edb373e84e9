package mp4

import (
	"encoding/binary"
	"fmt"
)

// tkhd flag bits.
const (
	TrackEnabled   uint32 = 0x1
	TrackInMovie   uint32 = 0x2
	TrackInPreview uint32 = 0x4
)

// Track summarizes one trak box.
type Track struct {
	ID      uint32
	Flags   uint32
	Handler string
	Name    string
}

// Enabled reports whether the track is enabled for playback.
func (t Track) Enabled() bool {
	return t.Flags&TrackEnabled != 0
}

// Tracks returns the tracks of the movie in file order.
func (f *File) Tracks() ([]Track, error) {
	var out []Track
	for i, trak := range f.Moov.ChildrenOf("trak") {
		tkhd := trak.Child("tkhd")
		if tkhd == nil {
			return nil, fmt.Errorf("trak %d: missing tkhd", i)
		}
		id, flags, err := parseTkhd(tkhd.Data)
		if err != nil {
			return nil, fmt.Errorf("trak %d: %w", i, err)
		}
		t := Track{ID: id, Flags: flags}
		if hdlr := trak.Find("mdia", "hdlr"); hdlr != nil {
			t.Handler, t.Name = parseHdlr(hdlr.Data)
		}
		out = append(out, t)
	}
	return out, nil
}

// AudioTracks returns only the tracks with a sound handler.
func (f *File) AudioTracks() ([]Track, error) {
	all, err := f.Tracks()
	if err != nil {
		return nil, err
	}
	var out []Track
	for _, t := range all {
		if t.Handler == "soun" {
			out = append(out, t)
		}
	}
	return out, nil
}

func parseTkhd(data []byte) (id uint32, flags uint32, err error) {
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("tkhd: truncated")
	}
	version := data[0]
	flags = uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	idOffset := 12
	if version == 1 {
		idOffset = 20
	}
	if len(data) < idOffset+4 {
		return 0, 0, fmt.Errorf("tkhd: truncated")
	}
	return binary.BigEndian.Uint32(data[idOffset:]), flags, nil
}

func parseHdlr(data []byte) (handler, name string) {
	if len(data) < 12 {
		return "", ""
	}
	handler = string(data[8:12])
	if len(data) > 24 {
		raw := data[24:]
		for i, b := range raw {
			if b == 0 {
				raw = raw[:i]
				break
			}
		}
		name = string(raw)
	}
	return handler, name
}

func tkhdPayload(id uint32, flags uint32, duration uint32) []byte {
	out := make([]byte, 84)
	out[1] = byte(flags >> 16)
	out[2] = byte(flags >> 8)
	out[3] = byte(flags)
	binary.BigEndian.PutUint32(out[12:], id)
	binary.BigEndian.PutUint32(out[20:], duration)
	binary.BigEndian.PutUint16(out[36:], 0x0100) // volume 1.0
	// unity matrix
	binary.BigEndian.PutUint32(out[40:], 0x00010000)
	binary.BigEndian.PutUint32(out[56:], 0x00010000)
	binary.BigEndian.PutUint32(out[72:], 0x40000000)
	return out
}

func hdlrPayload(handler, name string) []byte {
	out := make([]byte, 0, 25+len(name))
	out = append(out, 0, 0, 0, 0)
	out = append(out, 0, 0, 0, 0)
	out = append(out, fourCC(handler)...)
	out = append(out, make([]byte, 12)...)
	out = append(out, name...)
	return append(out, 0)
}
