package mp4

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Box is one node of the parsed moov tree. Leaf boxes keep their payload in
// Data; container boxes keep their children. Prefix holds bytes that precede
// the children of a full-box container (the version/flags word of meta).
type Box struct {
	Type     string
	Data     []byte
	Prefix   []byte
	Children []*Box
	// container is set for boxes whose payload was parsed as children.
	container bool
}

// containerTypes lists boxes whose payload is a sequence of child boxes.
var containerTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"udta": true,
	"ilst": true,
	"edts": true,
	"dinf": true,
}

// NewContainer returns an empty container box.
func NewContainer(typ string, children ...*Box) *Box {
	return &Box{Type: typ, Children: children, container: true}
}

// NewLeaf returns a leaf box holding data.
func NewLeaf(typ string, data []byte) *Box {
	return &Box{Type: typ, Data: data}
}

// NewMeta returns an empty full-box meta container with an mdir handler.
func NewMeta() *Box {
	return &Box{
		Type:      "meta",
		Prefix:    make([]byte, 4),
		container: true,
		Children: []*Box{
			NewLeaf("hdlr", mdirHandler()),
			NewContainer("ilst"),
		},
	}
}

// IsContainer reports whether b holds children rather than a raw payload.
func (b *Box) IsContainer() bool {
	return b.container
}

// Child returns the first direct child of the given type.
func (b *Box) Child(typ string) *Box {
	if b == nil {
		return nil
	}
	for _, c := range b.Children {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all direct children of the given type.
func (b *Box) ChildrenOf(typ string) []*Box {
	if b == nil {
		return nil
	}
	var out []*Box
	for _, c := range b.Children {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// Find walks a path of child types, returning nil if any step is missing.
func (b *Box) Find(path ...string) *Box {
	cur := b
	for _, typ := range path {
		cur = cur.Child(typ)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Ensure returns the child of the given type, appending a new container when absent.
func (b *Box) Ensure(typ string) *Box {
	if c := b.Child(typ); c != nil {
		return c
	}
	var c *Box
	if typ == "meta" {
		c = NewMeta()
	} else {
		c = NewContainer(typ)
	}
	b.Children = append(b.Children, c)
	return c
}

// Remove drops every direct child of the given type.
func (b *Box) Remove(typ string) {
	kept := b.Children[:0]
	for _, c := range b.Children {
		if c.Type != typ {
			kept = append(kept, c)
		}
	}
	b.Children = kept
}

// Walk visits b and all descendants depth first.
func (b *Box) Walk(fn func(*Box)) {
	fn(b)
	for _, c := range b.Children {
		c.Walk(fn)
	}
}

// Size returns the encoded size of b including its header.
func (b *Box) Size() uint64 {
	body := b.bodySize()
	if body+8 > math.MaxUint32 {
		return body + 16
	}
	return body + 8
}

func (b *Box) bodySize() uint64 {
	if !b.container {
		return uint64(len(b.Data))
	}
	n := uint64(len(b.Prefix))
	for _, c := range b.Children {
		n += c.Size()
	}
	return n
}

// Marshal encodes b with its header.
func (b *Box) Marshal() []byte {
	out := make([]byte, 0, b.Size())
	return b.appendTo(out)
}

func (b *Box) appendTo(out []byte) []byte {
	size := b.Size()
	if size > math.MaxUint32 {
		out = binary.BigEndian.AppendUint32(out, 1)
		out = append(out, fourCC(b.Type)...)
		out = binary.BigEndian.AppendUint64(out, size)
	} else {
		out = binary.BigEndian.AppendUint32(out, uint32(size))
		out = append(out, fourCC(b.Type)...)
	}
	if !b.container {
		return append(out, b.Data...)
	}
	out = append(out, b.Prefix...)
	for _, c := range b.Children {
		out = c.appendTo(out)
	}
	return out
}

// parseBoxes decodes a sequence of boxes. Children of ilst are item
// containers (their payload holds data/mean/name boxes).
func parseBoxes(data []byte, parent string) ([]*Box, error) {
	var out []*Box
	for off := 0; off < len(data); {
		if len(data)-off < 8 {
			if allZero(data[off:]) {
				break
			}
			return nil, fmt.Errorf("truncated box header at %d", off)
		}
		size := uint64(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		header := uint64(8)
		switch size {
		case 0:
			size = uint64(len(data) - off)
		case 1:
			if len(data)-off < 16 {
				return nil, fmt.Errorf("truncated extended header for %q", typ)
			}
			size = binary.BigEndian.Uint64(data[off+8:])
			header = 16
		}
		if size < header || size > uint64(len(data)-off) {
			return nil, fmt.Errorf("box %q at %d: invalid size %d", typ, off, size)
		}
		payload := data[off+int(header) : off+int(size)]
		box, err := parseBox(typ, payload, parent)
		if err != nil {
			return nil, err
		}
		out = append(out, box)
		off += int(size)
	}
	return out, nil
}

func parseBox(typ string, payload []byte, parent string) (*Box, error) {
	switch {
	case typ == "meta":
		prefix := metaPrefixLen(payload)
		children, err := parseBoxes(payload[prefix:], typ)
		if err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		return &Box{Type: typ, Prefix: append([]byte(nil), payload[:prefix]...), Children: children, container: true}, nil
	case containerTypes[typ] || parent == "ilst":
		children, err := parseBoxes(payload, typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", printable(typ), err)
		}
		return &Box{Type: typ, Children: children, container: true}, nil
	default:
		return &Box{Type: typ, Data: append([]byte(nil), payload...)}, nil
	}
}

// metaPrefixLen detects the ISO full-box form (4-byte version/flags before
// the children) versus the QuickTime form, where a box header starts at once.
func metaPrefixLen(payload []byte) int {
	if len(payload) >= 8 && string(payload[4:8]) == "hdlr" {
		return 0
	}
	if len(payload) >= 4 {
		return 4
	}
	return 0
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func mdirHandler() []byte {
	out := make([]byte, 0, 25)
	out = append(out, 0, 0, 0, 0) // version + flags
	out = append(out, 0, 0, 0, 0) // pre_defined
	out = append(out, "mdir"...)
	out = append(out, "appl"...)
	out = append(out, make([]byte, 8)...)
	return append(out, 0)
}

func fourCC(typ string) []byte {
	b := []byte(typ)
	switch {
	case len(b) == 4:
		return b
	case len(b) > 4:
		return b[:4]
	default:
		return append(b, make([]byte, 4-len(b))...)
	}
}

func printable(typ string) string {
	return fmt.Sprintf("%q", typ)
}
