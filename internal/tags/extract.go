package tags

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"stemforge/internal/fileutil"
	"stemforge/internal/logging"
	"stemforge/internal/mp4"
	"stemforge/internal/services"
	"stemforge/internal/textutil"
)

// Extractor reads descriptive tags from mixdown source files.
type Extractor struct {
	workDir string
	logger  *slog.Logger
}

// NewExtractor returns an extractor that writes embedded cover art below
// workDir. An empty workDir disables cover extraction.
func NewExtractor(workDir string, logger *slog.Logger) *Extractor {
	return &Extractor{workDir: workDir, logger: logging.NewComponentLogger(logger, "tagger")}
}

// Extract reads the tags of path and maps them onto the vocabulary. A file
// without any tags yields a set holding only a title derived from the file
// name.
func (x *Extractor) Extract(ctx context.Context, path string) (TagSet, error) {
	logger := logging.WithContext(services.WithStage(ctx, services.StageTag), x.logger)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, services.StageTag, "open source", path, err)
		}
		return nil, services.Wrap(services.ErrValidation, services.StageTag, "open source", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageTag, "stat source", path, err)
	}

	fs := newFields()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".flac":
		err = readTagged(file, fs)
	case ".m4a", ".mp4", ".m4p":
		err = readMP4(path, fs)
	case ".wav", ".wave":
		err = readWAV(file, info.Size(), fs)
	case ".aif", ".aiff":
		err = readAIFF(file, info.Size(), fs)
	default:
		return nil, services.Wrap(services.ErrUnsupportedFormat, services.StageTag, "extract tags", filepath.Base(path), nil)
	}
	if err != nil {
		logging.WarnWithContext(logger, "tag read failed", "tag_read_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "encoding continues with partial tags"),
			logging.String(logging.FieldErrorHint, "check the source file's tag block"),
		)
	}

	set := fs.resolve()
	name := baseName(path)
	if _, ok := set[Title]; !ok {
		set.Set(Title, name)
	}
	for k, v := range set {
		set.Set(k, textutil.NormalizeText(v))
	}

	if fs.cover != nil && x.workDir != "" {
		coverPath, err := x.writeCover(name, fs.cover)
		if err != nil {
			logging.WarnWithContext(logger, "cover art not saved", "cover_write_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "container will have no cover art"),
				logging.String(logging.FieldErrorHint, "check that paths.work_dir is writable"),
			)
		} else {
			set.Set(Cover, coverPath)
		}
	}

	logger.Debug("tags extracted",
		logging.String(logging.FieldEventType, "tags_extracted"),
		logging.String("path", path),
		logging.Int("count", len(set)),
	)
	return set, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (x *Extractor) writeCover(name string, pic *picture) (string, error) {
	ext := ".jpg"
	if strings.Contains(strings.ToLower(pic.mime), "png") {
		ext = ".png"
	}
	dir := filepath.Join(x.workDir, textutil.SafeFileName(name, "cover"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, "cover"+ext)
	if err := fileutil.WriteFileAtomic(dst, pic.data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// readTagged reads a stream dhowden/tag understands. Vorbis comments become
// flat keys and ID3v2 frames become frame keys.
func readTagged(r io.ReadSeeker, fs *fields) error {
	m, err := tag.ReadFrom(r)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil
		}
		return err
	}
	if p := m.Picture(); p != nil && len(p.Data) > 0 {
		fs.cover = &picture{mime: p.MIMEType, data: p.Data}
	}
	id3 := strings.HasPrefix(string(m.Format()), "ID3v2")
	for name, value := range m.Raw() {
		if id3 {
			addFrame(fs, name, value)
			continue
		}
		if s, ok := rawString(value); ok {
			fs.setFlat(strings.ToUpper(name), s)
		}
	}
	return nil
}

// addFrame records one ID3v2 frame. Repeated frames carry a _N suffix in the
// raw map; TXXX and WXXX frames are keyed by their description.
func addFrame(fs *fields, rawName string, value any) {
	name, _, _ := strings.Cut(rawName, "_")
	switch v := value.(type) {
	case *tag.Comm:
		switch name {
		case "TXXX", "WXXX":
			fs.setFrame(name+":"+strings.ToUpper(v.Description), v.Text)
		default:
			if _, seen := fs.frames[name]; !seen || v.Description == "" {
				fs.setFrame(name, v.Text)
			}
		}
	case *tag.Picture:
		// Taken from Metadata.Picture.
	case []byte:
		if strings.HasPrefix(name, "W") {
			fs.setFrame(name, chunkText(v))
		}
	default:
		if s, ok := rawString(v); ok {
			fs.setFrame(name, s)
		}
	}
}

func rawString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []string:
		return strings.Join(v, "; "), true
	case int:
		return fmt.Sprint(v), true
	}
	return "", false
}

func readEmbeddedID3(data []byte, fs *fields) error {
	return readTagged(bytes.NewReader(data), fs)
}

func readWAV(file *os.File, size int64, fs *fields) error {
	chunks, err := walkChunks(file, size, binary.LittleEndian, func(id string) bool {
		return id == "LIST" || id == "id3 " || id == "ID3 "
	})
	for _, c := range chunks {
		if c.id == "LIST" {
			parseRIFFInfo(c.data, fs)
			continue
		}
		if id3err := readEmbeddedID3(c.data, fs); id3err != nil && err == nil {
			err = id3err
		}
	}
	return err
}

func readAIFF(file *os.File, size int64, fs *fields) error {
	chunks, err := walkChunks(file, size, binary.BigEndian, func(id string) bool {
		_, text := aiffTextNames[id]
		return text || id == "ID3 " || id == "id3 "
	})
	for _, c := range chunks {
		if name, ok := aiffTextNames[c.id]; ok {
			fs.setFlat(name, chunkText(c.data))
			continue
		}
		if id3err := readEmbeddedID3(c.data, fs); id3err != nil && err == nil {
			err = id3err
		}
	}
	return err
}

// mp4FlatNames maps native ilst atoms onto flat tag names.
var mp4FlatNames = map[string]string{
	"\xa9nam": "TITLE",
	"\xa9ART": "ARTIST",
	"\xa9alb": "ALBUM",
	"\xa9gen": "GENRE",
	"\xa9day": "DATE",
	"\xa9cmt": "COMMENT",
	"\xa9lyr": "LYRICS",
	"\xa9wrt": "COMPOSER",
	"\xa9grp": "GROUPING",
	"cprt":    "COPYRIGHT",
	"ldes":    "DESCRIPTION",
	"aART":    "ALBUMARTIST",
	"tmpo":    "BPM",
}

// readMP4 reads ilst items. Freeform keys are upper-cased with spaces
// replaced, so "YouTube Id" reads back as YOUTUBE_ID.
func readMP4(path string, fs *fields) error {
	f, err := mp4.Open(path)
	if err != nil {
		return err
	}
	for _, it := range f.Items() {
		switch {
		case it.Name == mp4.Freeform:
			fs.setFlat(strings.ToUpper(strings.ReplaceAll(it.Key, " ", "_")), it.String())
		case it.Name == "trkn":
			if n, total, ok := it.Track(); ok && n > 0 {
				fs.setFlat("TRACKNUMBER", fmt.Sprint(n))
				if total > 0 {
					fs.setFlat("TOTALTRACKS", fmt.Sprint(total))
				}
			}
		case it.Name == "covr":
			mime := "image/jpeg"
			if it.Type == mp4.TypePNG {
				mime = "image/png"
			}
			if len(it.Value) > 0 {
				fs.cover = &picture{mime: mime, data: it.Value}
			}
		default:
			if name, ok := mp4FlatNames[it.Name]; ok {
				fs.setFlat(name, it.String())
			}
		}
	}
	return nil
}
