package tags

// dialect distinguishes the two tag namespaces a source file can carry.
type dialect int

const (
	// flat keys: Vorbis comments, RIFF INFO, AIFF text chunks and MP4 atoms
	// translated to upper-case names.
	flat dialect = iota
	// frame keys: ID3v2 frame ids, with TXXX/WXXX qualified by description.
	frame
)

type source struct {
	dialect dialect
	name    string
}

func f(name string) source  { return source{dialect: flat, name: name} }
func id(name string) source { return source{dialect: frame, name: name} }

type mapping struct {
	key     Key
	sources []source
}

// extractTable lists, per key, the native names consulted when reading a
// source file. Candidates are scanned in order and the last one present
// wins, so frames are listed after flat keys.
var extractTable = []mapping{
	{Title, []source{f("TITLE"), id("TIT2")}},
	{Artist, []source{f("ARTIST"), id("TPE1")}},
	{Album, []source{f("ALBUM"), id("TALB")}},
	{Label, []source{f("ORGANIZATION"), f("LABEL"), id("TPUB")}},
	{Genre, []source{f("GENRE"), id("TCON")}},
	{WWW, []source{f("WWW"), id("WXXX:"), id("TXXX:WWW")}},
	{Year, []source{f("DATE"), f("YEAR"), id("TDRC"), id("TYER")}},
	{TrackNo, []source{f("TRACKNUMBER"), id("TRCK")}},
	{TrackCount, []source{f("TRACKTOTAL"), f("TOTALTRACKS")}},
	{BPM, []source{f("BPM"), id("TBPM")}},
	{MusicalKey, []source{f("KEY"), id("TKEY")}},
	{InitialKey, []source{f("INITIALKEY"), id("TKEY")}},
	{Remixer, []source{f("REMIXER"), id("TPE4")}},
	{Mix, []source{f("MIX"), f("MIXER"), id("TXXX:MIX")}},
	{Producer, []source{f("PRODUCER"), id("TXXX:PRODUCER")}},
	{CatalogNo, []source{f("CATALOGNUMBER"), id("TXXX:CATALOGNUMBER")}},
	{DiscogsReleaseID, []source{f("DISCOGS_RELEASE_ID"), id("TXXX:DISCOGS_RELEASE_ID")}},
	{URLDiscogsReleaseSite, []source{f("URL_DISCOGS_RELEASE_SITE"), id("WXXX:DISCOGS_RELEASE_SITE")}},
	{URLDiscogsArtistSite, []source{f("URL_DISCOGS_ARTIST_SITE"), id("WXXX:DISCOGS_ARTIST_SITE")}},
	{YouTubeID, []source{f("YOUTUBE_ID"), id("TXXX:YOUTUBE_ID")}},
	{BeatportID, []source{f("BEATPORT_ID"), id("TXXX:BEATPORT_ID")}},
	{QobuzID, []source{f("QOBUZ_ID"), id("TXXX:QOBUZ_ID")}},
	{Lyrics, []source{f("LYRICS"), id("USLT")}},
	{Mood, []source{f("MOOD"), id("TMOO"), id("TXXX:MOOD")}},
	{Comment, []source{f("COMMENT"), id("COMM")}},
	{Description, []source{f("DESCRIPTION"), id("TXXX:DESCRIPTION")}},
	{Barcode, []source{f("BARCODE"), id("TXXX:BARCODE")}},
	{UPC, []source{f("UPC"), id("TXXX:UPC")}},
	{ISRC, []source{f("ISRC"), id("TSRC")}},
	{AlbumArtist, []source{f("ALBUMARTIST"), f("ALBUM_ARTIST"), id("TPE2")}},
	{Style, []source{f("STYLE"), id("TXXX:STYLE")}},
	{Track, []source{id("TPOS")}},
	{Copyright, []source{f("COPYRIGHT"), id("TCOP")}},
	{Media, []source{f("MEDIATYPE"), id("TMED")}},
	{Country, []source{f("COUNTRY"), id("TXXX:COUNTRY")}},
	{Composer, []source{f("COMPOSER"), id("TCOM")}},
	{Grouping, []source{f("GROUPING"), id("GRP1"), id("TIT1")}},
}

// fields collects the raw values found in one source file.
type fields struct {
	flat   map[string]string
	frames map[string]string
	cover  *picture
}

type picture struct {
	mime string
	data []byte
}

func newFields() *fields {
	return &fields{flat: map[string]string{}, frames: map[string]string{}}
}

func (fs *fields) setFlat(name, value string) {
	if value != "" {
		fs.flat[name] = value
	}
}

func (fs *fields) setFrame(name, value string) {
	if value != "" {
		fs.frames[name] = value
	}
}

func (fs *fields) lookup(s source) (string, bool) {
	var v string
	var ok bool
	if s.dialect == flat {
		v, ok = fs.flat[s.name]
	} else {
		v, ok = fs.frames[s.name]
	}
	return v, ok
}

// resolve applies extractTable to the collected fields.
func (fs *fields) resolve() TagSet {
	set := TagSet{}
	for _, m := range extractTable {
		for _, s := range m.sources {
			if v, ok := fs.lookup(s); ok {
				set.Set(m.key, v)
			}
		}
	}
	return set
}
