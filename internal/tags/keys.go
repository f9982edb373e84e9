package tags

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"stemforge/internal/services"
)

// Key names one field of the descriptive tag vocabulary.
type Key string

const (
	Title                 Key = "title"
	Artist                Key = "artist"
	Album                 Key = "album"
	Release               Key = "release"
	Label                 Key = "label"
	Genre                 Key = "genre"
	Year                  Key = "year"
	Date                  Key = "date"
	Track                 Key = "track"
	TrackNo               Key = "track_no"
	TrackCount            Key = "track_count"
	BPM                   Key = "bpm"
	MusicalKey            Key = "key"
	InitialKey            Key = "initialkey"
	Remixer               Key = "remixer"
	Mix                   Key = "mix"
	Producer              Key = "producer"
	CatalogNo             Key = "catalog_no"
	DiscogsReleaseID      Key = "discogs_release_id"
	URLDiscogsReleaseSite Key = "url_discogs_release_site"
	URLDiscogsArtistSite  Key = "url_discogs_artist_site"
	YouTubeID             Key = "youtube_id"
	BeatportID            Key = "beatport_id"
	QobuzID               Key = "qobuz_id"
	Lyrics                Key = "lyrics"
	Mood                  Key = "mood"
	Comment               Key = "comment"
	Description           Key = "description"
	Barcode               Key = "barcode"
	UPC                   Key = "upc"
	ISRC                  Key = "isrc"
	AlbumArtist           Key = "album_artist"
	Style                 Key = "style"
	Copyright             Key = "copyright"
	Media                 Key = "media"
	Country               Key = "country"
	Cover                 Key = "cover"
	WWW                   Key = "www"
	Grouping              Key = "grouping"
	Composer              Key = "composer"
)

// Vocabulary lists every supported key.
var Vocabulary = []Key{
	Title, Artist, Album, Release, Label, Genre, Year, Date, Track, TrackNo,
	TrackCount, BPM, MusicalKey, InitialKey, Remixer, Mix, Producer, CatalogNo,
	DiscogsReleaseID, URLDiscogsReleaseSite, URLDiscogsArtistSite, YouTubeID,
	BeatportID, QobuzID, Lyrics, Mood, Comment, Description, Barcode, UPC, ISRC,
	AlbumArtist, Style, Copyright, Media, Country, Cover, WWW, Grouping, Composer,
}

// ParseKey resolves a key name case-insensitively.
func ParseKey(name string) (Key, bool) {
	k := Key(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Vocabulary, k) {
		return k, true
	}
	return "", false
}

// TagSet holds descriptive tags for one encode. Absent keys are simply not
// present; empty values are never stored.
type TagSet map[Key]string

// FromMap builds a TagSet from loosely typed key/value pairs, rejecting keys
// outside the vocabulary.
func FromMap(values map[string]any) (TagSet, error) {
	set := make(TagSet, len(values))
	for name, raw := range values {
		key, ok := ParseKey(name)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, services.StageTag, "parse tags", fmt.Sprintf("unknown tag key %q", name), nil)
		}
		var value string
		switch v := raw.(type) {
		case nil:
			continue
		case string:
			value = v
		case float64:
			value = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			value = fmt.Sprint(v)
		}
		set.Set(key, value)
	}
	return set, nil
}

// Get returns the value of k.
func (s TagSet) Get(k Key) (string, bool) {
	v, ok := s[k]
	return v, ok
}

// Set stores a trimmed value; blank values delete the key.
func (s TagSet) Set(k Key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s, k)
		return
	}
	s[k] = value
}

// Clone returns an independent copy.
func (s TagSet) Clone() TagSet {
	out := make(TagSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// WithTitleSuffix returns a copy whose title has suffix appended. A set
// without a title gets none.
func (s TagSet) WithTitleSuffix(suffix string) TagSet {
	out := s.Clone()
	if title, ok := out[Title]; ok {
		out[Title] = title + suffix
	}
	return out
}

// Keys returns the present keys in vocabulary order.
func (s TagSet) Keys() []Key {
	out := make([]Key, 0, len(s))
	for _, k := range Vocabulary {
		if _, ok := s[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Map converts the set into plain string keys, the shape of tag files.
func (s TagSet) Map() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[string(k)] = v
	}
	return out
}
