package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"stemforge/internal/fileutil"
)

// ErrNoMovie is returned when a file has no moov box.
var ErrNoMovie = errors.New("mp4: no moov box")

// maxMoovSize bounds the moov box loaded into memory.
const maxMoovSize = 64 << 20

type topBox struct {
	typ    string
	offset int64
	size   int64
}

// File is an MP4 file with its moov box parsed into memory. Every other
// top-level box stays on disk and is copied through on Save.
type File struct {
	Path string
	Moov *Box

	top      []topBox
	moovIdx  int
	moovSize int64
}

// Open reads the top-level layout of path and parses its moov box.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	top, err := scanTop(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("mp4 %s: %w", filepath.Base(path), err)
	}

	file := &File{Path: path, top: top, moovIdx: -1}
	for i, tb := range top {
		if tb.typ != "moov" {
			continue
		}
		if tb.size > maxMoovSize {
			return nil, fmt.Errorf("mp4 %s: moov box too large (%d bytes)", filepath.Base(path), tb.size)
		}
		raw := make([]byte, tb.size)
		if _, err := f.ReadAt(raw, tb.offset); err != nil {
			return nil, fmt.Errorf("mp4 %s: read moov: %w", filepath.Base(path), err)
		}
		boxes, err := parseBoxes(raw, "")
		if err != nil {
			return nil, fmt.Errorf("mp4 %s: %w", filepath.Base(path), err)
		}
		if len(boxes) != 1 {
			return nil, fmt.Errorf("mp4 %s: malformed moov", filepath.Base(path))
		}
		file.Moov = boxes[0]
		file.moovIdx = i
		file.moovSize = tb.size
		break
	}
	if file.Moov == nil {
		return nil, ErrNoMovie
	}
	return file, nil
}

func scanTop(r io.ReaderAt, total int64) ([]topBox, error) {
	var out []topBox
	header := make([]byte, 16)
	for off := int64(0); off < total; {
		if total-off < 8 {
			return nil, fmt.Errorf("truncated top-level box at %d", off)
		}
		if _, err := r.ReadAt(header[:8], off); err != nil {
			return nil, err
		}
		size := int64(binary.BigEndian.Uint32(header))
		typ := string(header[4:8])
		switch size {
		case 0:
			size = total - off
		case 1:
			if _, err := r.ReadAt(header[8:16], off+8); err != nil {
				return nil, err
			}
			size = int64(binary.BigEndian.Uint64(header[8:16]))
		}
		if size < 8 || off+size > total {
			return nil, fmt.Errorf("box %q at %d: invalid size %d", typ, off, size)
		}
		out = append(out, topBox{typ: typ, offset: off, size: size})
		off += size
	}
	return out, nil
}

// Brand returns the major brand from the ftyp box, or "" when absent.
func (f *File) Brand() (string, error) {
	for _, tb := range f.top {
		if tb.typ != "ftyp" || tb.size < 12 {
			continue
		}
		src, err := os.Open(f.Path)
		if err != nil {
			return "", err
		}
		defer src.Close()
		brand := make([]byte, 4)
		if _, err := src.ReadAt(brand, tb.offset+8); err != nil {
			return "", err
		}
		return string(brand), nil
	}
	return "", nil
}

// Save rewrites the file in place through a sibling temp file. Chunk offsets
// pointing past the moov box are shifted when its size changes. After a failed
// Save the File must be reopened.
func (f *File) Save() error {
	newSize := int64(f.Moov.Size())
	delta := newSize - f.moovSize
	if delta != 0 {
		moovEnd := f.top[f.moovIdx].offset + f.moovSize
		if err := shiftChunkOffsets(f.Moov, moovEnd, delta); err != nil {
			return err
		}
	}

	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".stemforge-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	var newTop []topBox
	var pos int64
	for i, tb := range f.top {
		if i == f.moovIdx {
			if _, err := tmp.Write(f.Moov.Marshal()); err != nil {
				return fail(fmt.Errorf("write moov: %w", err))
			}
			newTop = append(newTop, topBox{typ: "moov", offset: pos, size: newSize})
			pos += newSize
			continue
		}
		if _, err := io.Copy(tmp, io.NewSectionReader(src, tb.offset, tb.size)); err != nil {
			return fail(fmt.Errorf("copy %s: %w", tb.typ, err))
		}
		newTop = append(newTop, topBox{typ: tb.typ, offset: pos, size: tb.size})
		pos += tb.size
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fileutil.Commit(tmpPath, f.Path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	f.top = newTop
	f.moovSize = newSize
	return nil
}

func shiftChunkOffsets(moov *Box, after int64, delta int64) error {
	var err error
	moov.Walk(func(b *Box) {
		if err != nil {
			return
		}
		switch b.Type {
		case "stco":
			err = shiftTable(b, 4, after, delta)
		case "co64":
			err = shiftTable(b, 8, after, delta)
		}
	})
	return err
}

func shiftTable(b *Box, width int, after, delta int64) error {
	if len(b.Data) < 8 {
		return fmt.Errorf("%s: truncated", b.Type)
	}
	count := int(binary.BigEndian.Uint32(b.Data[4:8]))
	if len(b.Data) < 8+count*width {
		return fmt.Errorf("%s: %d entries exceed payload", b.Type, count)
	}
	for i := 0; i < count; i++ {
		at := b.Data[8+i*width:]
		if width == 4 {
			v := int64(binary.BigEndian.Uint32(at))
			if v >= after {
				v += delta
				if v < 0 || v > 0xFFFFFFFF {
					return fmt.Errorf("stco: shifted offset %d out of range", v)
				}
				binary.BigEndian.PutUint32(at, uint32(v))
			}
			continue
		}
		v := int64(binary.BigEndian.Uint64(at))
		if v >= after {
			binary.BigEndian.PutUint64(at, uint64(v+delta))
		}
	}
	return nil
}

// ChunkOffsets returns the chunk offset table of every track, in track order.
func (f *File) ChunkOffsets() [][]int64 {
	var out [][]int64
	for _, trak := range f.Moov.ChildrenOf("trak") {
		stbl := trak.Find("mdia", "minf", "stbl")
		var offsets []int64
		if stco := stbl.Child("stco"); stco != nil && len(stco.Data) >= 8 {
			n := int(binary.BigEndian.Uint32(stco.Data[4:8]))
			for i := 0; i < n && 8+i*4+4 <= len(stco.Data); i++ {
				offsets = append(offsets, int64(binary.BigEndian.Uint32(stco.Data[8+i*4:])))
			}
		} else if co64 := stbl.Child("co64"); co64 != nil && len(co64.Data) >= 8 {
			n := int(binary.BigEndian.Uint32(co64.Data[4:8]))
			for i := 0; i < n && 8+i*8+8 <= len(co64.Data); i++ {
				offsets = append(offsets, int64(binary.BigEndian.Uint64(co64.Data[8+i*8:])))
			}
		}
		out = append(out, offsets)
	}
	return out
}

// UserData returns the payload of moov/udta/<typ>.
func (f *File) UserData(typ string) ([]byte, bool) {
	box := f.Moov.Find("udta", typ)
	if box == nil || box.IsContainer() {
		return nil, false
	}
	return append([]byte(nil), box.Data...), true
}
