package tags

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxChunkBytes bounds the metadata chunks loaded into memory.
const maxChunkBytes = 32 << 20

type chunk struct {
	id   string
	data []byte
}

// walkChunks scans IFF-style chunks from offset 12 of r (RIFF/WAVE or
// FORM/AIFF) and returns the bodies of chunks accepted by want. Sizes are
// little-endian for RIFF and big-endian for FORM; odd sizes are padded.
func walkChunks(r io.ReaderAt, size int64, order binary.ByteOrder, want func(id string) bool) ([]chunk, error) {
	var out []chunk
	header := make([]byte, 8)
	for off := int64(12); off+8 <= size; {
		if _, err := r.ReadAt(header, off); err != nil {
			return out, fmt.Errorf("read chunk header at %d: %w", off, err)
		}
		id := string(header[:4])
		n := int64(order.Uint32(header[4:]))
		off += 8
		if off+n > size {
			// Truncated trailing chunk; keep what was read.
			break
		}
		if want(id) {
			if n > maxChunkBytes {
				return out, fmt.Errorf("chunk %q too large (%d bytes)", id, n)
			}
			body := make([]byte, n)
			if _, err := r.ReadAt(body, off); err != nil && !errors.Is(err, io.EOF) {
				return out, fmt.Errorf("read chunk %q: %w", id, err)
			}
			out = append(out, chunk{id: id, data: body})
		}
		off += n + n%2
	}
	return out, nil
}

// riffInfoNames maps RIFF INFO sub-chunks onto flat tag names.
var riffInfoNames = map[string]string{
	"INAM": "TITLE",
	"IART": "ARTIST",
	"IPRD": "ALBUM",
	"ICMT": "COMMENT",
	"ICOP": "COPYRIGHT",
	"IGNR": "GENRE",
	"ICRD": "DATE",
	"ITRK": "TRACKNUMBER",
	"IPRT": "TRACKNUMBER",
	"IMUS": "COMPOSER",
	"IMED": "MEDIATYPE",
}

// parseRIFFInfo reads the sub-chunks of a LIST body whose list type is INFO.
func parseRIFFInfo(list []byte, fs *fields) {
	if len(list) < 4 || string(list[:4]) != "INFO" {
		return
	}
	for pos := 4; pos+8 <= len(list); {
		id := string(list[pos : pos+4])
		n := int(binary.LittleEndian.Uint32(list[pos+4 : pos+8]))
		pos += 8
		if n < 0 || pos+n > len(list) {
			break
		}
		if name, ok := riffInfoNames[id]; ok {
			fs.setFlat(name, chunkText(list[pos:pos+n]))
		}
		pos += n + n%2
	}
}

// aiffTextNames maps AIFF text chunks onto flat tag names.
var aiffTextNames = map[string]string{
	"NAME": "TITLE",
	"AUTH": "ARTIST",
	"(c) ": "COPYRIGHT",
	"ANNO": "COMMENT",
}

func chunkText(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}
