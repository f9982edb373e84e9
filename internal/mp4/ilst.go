package mp4

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known data atom type indicators.
const (
	TypeImplicit uint32 = 0
	TypeUTF8     uint32 = 1
	TypeISRC     uint32 = 9
	TypeJPEG     uint32 = 13
	TypePNG      uint32 = 14
	TypeInteger  uint32 = 21
	TypeUPC      uint32 = 25
)

// Freeform is the item name of reverse-DNS (----) atoms.
const Freeform = "----"

// ITunesMean is the mean string used for iTunes freeform atoms.
const ITunesMean = "com.apple.iTunes"

// Item is one ilst entry with a single data value. Name is the four-character
// atom type ("\xa9nam", "trkn", ...) or Freeform, in which case Mean and Key
// identify the atom.
type Item struct {
	Name  string
	Mean  string
	Key   string
	Type  uint32
	Value []byte
}

// Text returns an item holding a UTF-8 value.
func Text(name, value string) Item {
	return Item{Name: name, Type: TypeUTF8, Value: []byte(value)}
}

// FreeformText returns a ----:com.apple.iTunes:<key> item holding a UTF-8 value.
func FreeformText(key, value string) Item {
	return Item{Name: Freeform, Mean: ITunesMean, Key: key, Type: TypeUTF8, Value: []byte(value)}
}

// Integer returns an item holding a big-endian signed integer of the smallest
// width (1, 2, 4 or 8 bytes) that fits v.
func Integer(name string, v int64) Item {
	var buf []byte
	switch {
	case v >= -1<<7 && v < 1<<7:
		buf = []byte{byte(v)}
	case v >= -1<<15 && v < 1<<15:
		buf = binary.BigEndian.AppendUint16(nil, uint16(v))
	case v >= -1<<31 && v < 1<<31:
		buf = binary.BigEndian.AppendUint32(nil, uint32(v))
	default:
		buf = binary.BigEndian.AppendUint64(nil, uint64(v))
	}
	return Item{Name: name, Type: TypeInteger, Value: buf}
}

// TrackNumber returns a trkn item. number and total are stored as 16-bit
// fields; callers keep them within [0, 65535].
func TrackNumber(number, total int) Item {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[2:], uint16(number))
	binary.BigEndian.PutUint16(buf[4:], uint16(total))
	return Item{Name: "trkn", Type: TypeImplicit, Value: buf}
}

// Cover returns a covr item, typed PNG or JPEG.
func Cover(data []byte, png bool) Item {
	typ := TypeJPEG
	if png {
		typ = TypePNG
	}
	return Item{Name: "covr", Type: typ, Value: data}
}

// ID is the identity used to replace items: the atom name, or
// "----:<mean>:<key>" for freeform atoms.
func (it Item) ID() string {
	if it.Name == Freeform {
		return Freeform + ":" + it.Mean + ":" + it.Key
	}
	return it.Name
}

// String renders the value for display.
func (it Item) String() string {
	switch it.Type {
	case TypeUTF8, TypeISRC, TypeUPC:
		return string(it.Value)
	case TypeInteger:
		if n, ok := it.Int(); ok {
			return fmt.Sprint(n)
		}
	}
	if it.Name == "trkn" {
		if n, total, ok := it.Track(); ok {
			return fmt.Sprintf("%d/%d", n, total)
		}
	}
	if utf8.Valid(it.Value) && it.Type != TypeJPEG && it.Type != TypePNG {
		return string(it.Value)
	}
	return fmt.Sprintf("<%d bytes>", len(it.Value))
}

// Int decodes a big-endian integer value.
func (it Item) Int() (int64, bool) {
	switch len(it.Value) {
	case 1:
		return int64(int8(it.Value[0])), true
	case 2:
		return int64(int16(binary.BigEndian.Uint16(it.Value))), true
	case 4:
		return int64(int32(binary.BigEndian.Uint32(it.Value))), true
	case 8:
		return int64(binary.BigEndian.Uint64(it.Value)), true
	}
	return 0, false
}

// Track decodes a trkn value.
func (it Item) Track() (number, total int, ok bool) {
	if len(it.Value) < 6 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(it.Value[2:])), int(binary.BigEndian.Uint16(it.Value[4:])), true
}

func (it Item) box() *Box {
	data := make([]byte, 8, 8+len(it.Value))
	binary.BigEndian.PutUint32(data, it.Type&0x00FFFFFF)
	data = append(data, it.Value...)
	item := NewContainer(it.Name)
	if it.Name == Freeform {
		item.Children = append(item.Children,
			NewLeaf("mean", append([]byte{0, 0, 0, 0}, it.Mean...)),
			NewLeaf("name", append([]byte{0, 0, 0, 0}, it.Key...)),
		)
	}
	item.Children = append(item.Children, NewLeaf("data", data))
	return item
}

func itemFromBox(b *Box) (Item, bool) {
	it := Item{Name: b.Type}
	for _, c := range b.Children {
		switch c.Type {
		case "mean":
			if len(c.Data) >= 4 {
				it.Mean = string(c.Data[4:])
			}
		case "name":
			if len(c.Data) >= 4 {
				it.Key = string(c.Data[4:])
			}
		case "data":
			if len(c.Data) < 8 {
				return Item{}, false
			}
			it.Type = binary.BigEndian.Uint32(c.Data) & 0x00FFFFFF
			it.Value = append([]byte(nil), c.Data[8:]...)
			return it, true
		}
	}
	return Item{}, false
}

func (f *File) ilst() *Box {
	return f.Moov.Find("udta", "meta", "ilst")
}

// Items returns every decodable ilst entry in file order.
func (f *File) Items() []Item {
	ilst := f.ilst()
	if ilst == nil {
		return nil
	}
	var out []Item
	for _, c := range ilst.Children {
		if it, ok := itemFromBox(c); ok {
			out = append(out, it)
		}
	}
	return out
}

// Lookup returns the item with the given ID. Freeform keys compare case-insensitively.
func (f *File) Lookup(id string) (Item, bool) {
	for _, it := range f.Items() {
		if it.ID() == id || (strings.HasPrefix(id, Freeform+":") && strings.EqualFold(it.ID(), id)) {
			return it, true
		}
	}
	return Item{}, false
}

// SetItems writes items into moov/udta/meta/ilst, replacing entries with the
// same ID and keeping all others. Missing udta/meta/ilst boxes are created.
func (f *File) SetItems(items []Item) {
	ilst := f.Moov.Ensure("udta").Ensure("meta").Ensure("ilst")
	replace := make(map[string]bool, len(items))
	for _, it := range items {
		replace[it.ID()] = true
	}
	kept := ilst.Children[:0]
	for _, c := range ilst.Children {
		if existing, ok := itemFromBox(c); ok && replace[existing.ID()] {
			continue
		}
		kept = append(kept, c)
	}
	ilst.Children = kept
	for _, it := range items {
		ilst.Children = append(ilst.Children, it.box())
	}
}
