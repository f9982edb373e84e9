package tags

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stemforge/internal/mp4"
	"stemforge/internal/services"
)

func id3Chunk(t *testing.T, build func(tag *id3v2.Tag)) []byte {
	t.Helper()
	tag := id3v2.NewEmptyTag()
	build(tag)
	var buf bytes.Buffer
	_, err := tag.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func iffChunk(order binary.ByteOrder, id string, body []byte) []byte {
	out := append([]byte(id), make([]byte, 4)...)
	order.PutUint32(out[4:], uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func riffInfo(fields map[string]string) []byte {
	body := []byte("INFO")
	for id, v := range fields {
		body = append(body, iffChunk(binary.LittleEndian, id, append([]byte(v), 0))...)
	}
	return body
}

func writeWAV(t *testing.T, dir, name string, chunks ...[]byte) string {
	t.Helper()
	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:], 1)
	binary.LittleEndian.PutUint16(fmtChunk[2:], 2)
	binary.LittleEndian.PutUint32(fmtChunk[4:], 44100)
	body := []byte("WAVE")
	body = append(body, iffChunk(binary.LittleEndian, "fmt ", fmtChunk)...)
	for _, c := range chunks {
		body = append(body, c...)
	}
	body = append(body, iffChunk(binary.LittleEndian, "data", make([]byte, 8))...)
	file := append([]byte("RIFF"), make([]byte, 4)...)
	binary.LittleEndian.PutUint32(file[4:], uint32(len(body)))
	file = append(file, body...)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, file, 0o644))
	return path
}

func TestExtractFramePrecedesFlatKey(t *testing.T) {
	dir := t.TempDir()
	id3 := id3Chunk(t, func(tag *id3v2.Tag) {
		tag.AddTextFrame("TIT2", id3v2.EncodingUTF8, "Frame Title")
		tag.AddTextFrame("TBPM", id3v2.EncodingUTF8, "124")
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: "MIX",
			Value:       "Extended Mix",
		})
	})
	path := writeWAV(t, dir, "song.wav",
		iffChunk(binary.LittleEndian, "LIST", riffInfo(map[string]string{"INAM": "Flat Title", "IART": "Flat Artist"})),
		iffChunk(binary.LittleEndian, "id3 ", id3),
	)

	set, err := NewExtractor("", nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Frame Title", set[Title])
	assert.Equal(t, "Flat Artist", set[Artist])
	assert.Equal(t, "124", set[BPM])
	assert.Equal(t, "Extended Mix", set[Mix])
}

func TestExtractFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "untagged.wav")

	set, err := NewExtractor("", nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, TagSet{Title: "untagged"}, set)
}

func TestExtractAIFFTextChunks(t *testing.T) {
	dir := t.TempDir()
	body := []byte("AIFF")
	body = append(body, iffChunk(binary.BigEndian, "NAME", []byte("Aiff Title"))...)
	body = append(body, iffChunk(binary.BigEndian, "AUTH", []byte("Aiff Artist"))...)
	body = append(body, iffChunk(binary.BigEndian, "(c) ", []byte("2024 Label"))...)
	body = append(body, iffChunk(binary.BigEndian, "ID3 ", id3Chunk(t, func(tag *id3v2.Tag) {
		tag.AddTextFrame("TPE1", id3v2.EncodingUTF8, "Frame Artist")
	}))...)
	file := append([]byte("FORM"), make([]byte, 4)...)
	binary.BigEndian.PutUint32(file[4:], uint32(len(body)))
	file = append(file, body...)
	path := filepath.Join(dir, "track.aiff")
	require.NoError(t, os.WriteFile(path, file, 0o644))

	set, err := NewExtractor("", nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Aiff Title", set[Title])
	assert.Equal(t, "Frame Artist", set[Artist])
	assert.Equal(t, "2024 Label", set[Copyright])
}

func TestExtractWritesCoverSidecar(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	art := []byte("\x89PNG fake image")
	id3 := id3Chunk(t, func(tag *id3v2.Tag) {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/png",
			PictureType: id3v2.PTFrontCover,
			Description: "Front",
			Picture:     art,
		})
	})
	path := writeWAV(t, dir, "cover.wav", iffChunk(binary.LittleEndian, "id3 ", id3))

	set, err := NewExtractor(work, nil).Extract(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(work, "cover", "cover.png"), set[Cover])
	data, err := os.ReadFile(set[Cover])
	require.NoError(t, err)
	assert.Equal(t, art, data)
}

func TestExtractMP4ReadsBackAppliedItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mix.m4a")
	require.NoError(t, mp4.WriteMinimal(path, mp4.MinimalLayout{
		Tracks: []mp4.MinimalTrack{{Name: "mix", Payload: []byte{1, 2}}},
		Items: []mp4.Item{
			mp4.Text("\xa9nam", "Atom Title"),
			mp4.FreeformText("YouTube Id", "abc123"),
			mp4.TrackNumber(3, 12),
		},
	}))

	set, err := NewExtractor("", nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Atom Title", set[Title])
	assert.Equal(t, "abc123", set[YouTubeID])
	assert.Equal(t, "3", set[TrackNo])
	assert.Equal(t, "12", set[TrackCount])
}

func TestExtractRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := NewExtractor("", nil).Extract(context.Background(), path)
	require.ErrorIs(t, err, services.ErrUnsupportedFormat)
}

func TestItemsMapping(t *testing.T) {
	set := TagSet{
		Title:       "Song",
		Release:     "Release Name",
		Album:       "Album Name",
		Style:       "Deep House",
		Genre:       "House",
		Year:        "2019",
		BPM:         "123",
		TrackNo:     "4",
		TrackCount:  "10",
		Mix:         "Original Mix",
		UPC:         "111",
		Barcode:     "222",
		YouTubeID:   "yt",
		InitialKey:  "8A",
		Description: "long",
	}
	byID := map[string]mp4.Item{}
	for _, it := range Items(set) {
		byID[it.ID()] = it
	}

	assert.Equal(t, "Song", byID["\xa9nam"].String())
	assert.Equal(t, "Album Name", byID["\xa9alb"].String())
	assert.Equal(t, "House", byID["\xa9gen"].String())
	assert.Equal(t, "2019", byID["\xa9day"].String())
	assert.Equal(t, "long", byID["ldes"].String())
	bpm, ok := byID["tmpo"].Int()
	require.True(t, ok)
	assert.EqualValues(t, 123, bpm)
	n, total, ok := byID["trkn"].Track()
	require.True(t, ok)
	assert.Equal(t, [2]int{4, 10}, [2]int{n, total})
	assert.Equal(t, "Original Mix", byID["----:com.apple.iTunes:MIXER"].String())
	assert.Equal(t, "222", byID["----:com.apple.iTunes:BARCODE"].String())
	assert.Equal(t, mp4.TypeUPC, byID["----:com.apple.iTunes:BARCODE"].Type)
	assert.Equal(t, "yt", byID["----:com.apple.iTunes:YouTube Id"].String())
	assert.Equal(t, "8A", byID["----:com.apple.iTunes:initialkey"].String())
	assert.Equal(t, StemAuthoringValue, byID["TAUT"].String())
}

func TestItemsSkipsNonIntegerNumbers(t *testing.T) {
	cases := []TagSet{
		{TrackNo: "3.7", TrackCount: "12", BPM: "123.5"},
		{TrackNo: "3/12", TrackCount: "12", BPM: "-1"},
		{TrackNo: "70000", TrackCount: "12", BPM: "70000"},
		{TrackNo: "3", TrackCount: "1e2", BPM: ""},
	}
	for _, set := range cases {
		for _, it := range Items(set) {
			assert.NotEqual(t, "trkn", it.Name, "%v", set)
			assert.NotEqual(t, "tmpo", it.Name, "%v", set)
		}
	}

	byID := map[string]mp4.Item{}
	for _, it := range Items(TagSet{TrackNo: " 7 ", TrackCount: "65535", BPM: "65535"}) {
		byID[it.ID()] = it
	}
	n, total, ok := byID["trkn"].Track()
	require.True(t, ok)
	assert.Equal(t, [2]int{7, 65535}, [2]int{n, total})
	bpm, ok := byID["tmpo"].Int()
	require.True(t, ok)
	assert.EqualValues(t, 65535, bpm)
}

func TestItemsSkipsTrackWithoutCount(t *testing.T) {
	for _, it := range Items(TagSet{TrackNo: "4", BPM: "fast"}) {
		assert.NotEqual(t, "trkn", it.Name)
		assert.NotEqual(t, "tmpo", it.Name)
	}
}

func TestApplyWritesItemsAndRemoteCover(t *testing.T) {
	art := []byte("png bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(art)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.stem.m4a")
	require.NoError(t, mp4.WriteMinimal(path, mp4.MinimalLayout{
		Tracks: []mp4.MinimalTrack{{Name: "mix", Payload: []byte{1, 2, 3, 4}}},
		Items:  []mp4.Item{mp4.Text("\xa9nam", "old"), mp4.Text("\xa9too", "encoder")},
	}))

	set := TagSet{Title: "New Title", Artist: "Someone", Cover: srv.URL + "/art/cover.png"}
	require.NoError(t, NewApplier(nil, srv.Client()).Apply(context.Background(), set, path))

	f, err := mp4.Open(path)
	require.NoError(t, err)
	title, ok := f.Lookup("\xa9nam")
	require.True(t, ok)
	assert.Equal(t, "New Title", title.String())
	_, ok = f.Lookup("\xa9too")
	assert.True(t, ok, "unrelated items are kept")
	taut, ok := f.Lookup("TAUT")
	require.True(t, ok)
	assert.Equal(t, "STEM", taut.String())
	cover, ok := f.Lookup("covr")
	require.True(t, ok)
	assert.Equal(t, mp4.TypePNG, cover.Type)
	assert.Equal(t, art, cover.Value)
}

func TestApplyMissingCoverStillTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.stem.m4a")
	require.NoError(t, mp4.WriteMinimal(path, mp4.MinimalLayout{
		Tracks: []mp4.MinimalTrack{{Name: "mix", Payload: []byte{1}}},
	}))
	set := TagSet{Title: "T", Cover: "file:///does/not/exist.jpg"}
	require.NoError(t, NewApplier(nil, nil).Apply(context.Background(), set, path))

	f, err := mp4.Open(path)
	require.NoError(t, err)
	_, ok := f.Lookup("covr")
	assert.False(t, ok)
}

func TestLoadFileFormats(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "tags.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"title":"A","bpm":128,"Artist":"B"}`), 0o644))
	set, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, TagSet{Title: "A", BPM: "128", Artist: "B"}, set)

	yamlPath := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("title: C\ntrack_no: 3\n"), 0o644))
	set, err = LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, TagSet{Title: "C", TrackNo: "3"}, set)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"tempo":1}`), 0o644))
	_, err = LoadFile(badPath)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.json")
	set := TagSet{Title: "A", Genre: "Techno"}
	require.NoError(t, WriteFile(path, set))
	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestWithTitleSuffixCopies(t *testing.T) {
	set := TagSet{Title: "Song"}
	part := set.WithTitleSuffix(" [part 1]")
	assert.Equal(t, "Song [part 1]", part[Title])
	assert.Equal(t, "Song", set[Title])
	assert.Empty(t, TagSet{}.WithTitleSuffix(" [part 1]"))
}
