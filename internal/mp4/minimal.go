package mp4

import (
	"encoding/binary"
	"fmt"
	"maps"
	"os"
	"slices"
)

// MinimalTrack describes one audio track of a synthetic container.
type MinimalTrack struct {
	Name     string
	Disabled bool
	// Payload becomes the track's single chunk in mdat.
	Payload []byte
}

// MinimalLayout describes a synthetic stem-style container: ftyp, a moov with
// one trak per track (tkhd, mdia/hdlr, stbl/stco), an optional udta box and
// an mdat placed after moov.
type MinimalLayout struct {
	Brand    string
	Tracks   []MinimalTrack
	UserData map[string][]byte
	Items    []Item
}

// WriteMinimal writes a container described by layout to path. It is used by
// in-process muxers and tests that need real box layouts without MP4Box.
func WriteMinimal(path string, layout MinimalLayout) error {
	brand := layout.Brand
	if brand == "" {
		brand = "M4A "
	}
	ftyp := make([]byte, 0, 20)
	ftyp = append(ftyp, fourCC(brand)...)
	ftyp = binary.BigEndian.AppendUint32(ftyp, 0)
	ftyp = append(ftyp, "isomiso2"...)
	ftypBox := NewLeaf("ftyp", ftyp)

	moov := NewContainer("moov", NewLeaf("mvhd", mvhdPayload(uint32(len(layout.Tracks)+1))))
	stcos := make([]*Box, len(layout.Tracks))
	for i, t := range layout.Tracks {
		flags := TrackEnabled | TrackInMovie
		if t.Disabled {
			flags = TrackInMovie
		}
		stco := NewLeaf("stco", make([]byte, 12))
		binary.BigEndian.PutUint32(stco.Data[4:], 1)
		stcos[i] = stco
		trak := NewContainer("trak",
			NewLeaf("tkhd", tkhdPayload(uint32(i+1), flags, uint32(len(t.Payload)))),
			NewContainer("mdia",
				NewLeaf("hdlr", hdlrPayload("soun", t.Name)),
				NewContainer("minf", NewContainer("stbl", stco)),
			),
		)
		moov.Children = append(moov.Children, trak)
	}

	if len(layout.UserData) > 0 || len(layout.Items) > 0 {
		udta := moov.Ensure("udta")
		for _, typ := range slices.Sorted(maps.Keys(layout.UserData)) {
			udta.Children = append(udta.Children, NewLeaf(typ, layout.UserData[typ]))
		}
		if len(layout.Items) > 0 {
			ilst := udta.Ensure("meta").Ensure("ilst")
			for _, it := range layout.Items {
				ilst.Children = append(ilst.Children, it.box())
			}
		}
	}

	var mdat []byte
	offset := int64(ftypBox.Size()) + int64(moov.Size()) + 8
	for i, t := range layout.Tracks {
		binary.BigEndian.PutUint32(stcos[i].Data[8:], uint32(offset+int64(len(mdat))))
		mdat = append(mdat, t.Payload...)
	}

	out := ftypBox.Marshal()
	out = append(out, moov.Marshal()...)
	out = append(out, NewLeaf("mdat", mdat).Marshal()...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write minimal mp4: %w", err)
	}
	return nil
}

func mvhdPayload(nextTrackID uint32) []byte {
	out := make([]byte, 100)
	binary.BigEndian.PutUint32(out[12:], 1000) // timescale
	binary.BigEndian.PutUint32(out[20:], 0x00010000)
	binary.BigEndian.PutUint16(out[24:], 0x0100)
	binary.BigEndian.PutUint32(out[36:], 0x00010000)
	binary.BigEndian.PutUint32(out[52:], 0x00010000)
	binary.BigEndian.PutUint32(out[68:], 0x40000000)
	binary.BigEndian.PutUint32(out[96:], nextTrackID)
	return out
}
