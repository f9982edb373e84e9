package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"stemforge/internal/logging"
	"stemforge/internal/mp4"
	"stemforge/internal/services"
)

// maxCoverBytes bounds downloaded cover art.
const maxCoverBytes = 16 << 20

// StemAuthoringValue is the TAUT atom value that marks a stem container.
const StemAuthoringValue = "STEM"

type freeformMapping struct {
	atom string
	keys []Key
	typ  uint32
}

// nativeAtoms lists the ilst text atoms written on apply. When several keys
// feed one atom the last present key wins.
var nativeAtoms = []struct {
	atom string
	keys []Key
}{
	{"\xa9nam", []Key{Title}},
	{"\xa9ART", []Key{Artist}},
	{"\xa9alb", []Key{Release, Album}},
	{"\xa9gen", []Key{Style, Genre}},
	{"\xa9day", []Key{Year, Date}},
	{"\xa9cmt", []Key{Comment}},
	{"\xa9wrt", []Key{Composer}},
	{"\xa9grp", []Key{Grouping}},
	{"\xa9lyr", []Key{Lyrics}},
	{"cprt", []Key{Copyright}},
	{"ldes", []Key{Description}},
	{"aART", []Key{AlbumArtist}},
}

var freeformAtoms = []freeformMapping{
	{"REMIXER", []Key{Remixer}, mp4.TypeUTF8},
	{"MIXER", []Key{Mix}, mp4.TypeUTF8},
	{"PRODUCER", []Key{Producer}, mp4.TypeUTF8},
	{"LABEL", []Key{Label}, mp4.TypeUTF8},
	{"CATALOGNUMBER", []Key{CatalogNo}, mp4.TypeUTF8},
	{"ISRC", []Key{ISRC}, mp4.TypeISRC},
	{"BARCODE", []Key{UPC, Barcode}, mp4.TypeUPC},
	{"initialkey", []Key{InitialKey}, mp4.TypeUTF8},
	{"KEY", []Key{MusicalKey}, mp4.TypeUTF8},
	{"MOOD", []Key{Mood}, mp4.TypeUTF8},
	{"URL_DISCOGS_ARTIST_SITE", []Key{URLDiscogsArtistSite}, mp4.TypeUTF8},
	{"URL_DISCOGS_RELEASE_SITE", []Key{URLDiscogsReleaseSite}, mp4.TypeUTF8},
	{"YouTube Id", []Key{YouTubeID}, mp4.TypeUTF8},
	{"Beatport Id", []Key{BeatportID}, mp4.TypeUTF8},
	{"Qobuz Id", []Key{QobuzID}, mp4.TypeUTF8},
}

func last(set TagSet, keys []Key) (string, bool) {
	var (
		value string
		found bool
	)
	for _, k := range keys {
		if v, ok := set[k]; ok {
			value, found = v, true
		}
	}
	return value, found
}

// maxAtomInt bounds tmpo and trkn fields, which are 16-bit.
const maxAtomInt = 1<<16 - 1

// parseInt accepts a plain decimal integer in [0, 65535].
func parseInt(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || n > maxAtomInt {
		return 0, false
	}
	return n, true
}

// Items converts a tag set into ilst items, excluding cover art. The stem
// authoring marker is always included. Numeric fields that do not parse as
// integers are omitted.
func Items(set TagSet) []mp4.Item {
	var items []mp4.Item
	for _, n := range nativeAtoms {
		if v, ok := last(set, n.keys); ok {
			items = append(items, mp4.Text(n.atom, v))
		}
	}
	if v, ok := set[BPM]; ok {
		if bpm, ok := parseInt(v); ok {
			items = append(items, mp4.Integer("tmpo", int64(bpm)))
		}
	}
	if number, total, ok := trackNumber(set); ok {
		items = append(items, mp4.TrackNumber(number, total))
	}
	for _, ff := range freeformAtoms {
		if v, ok := last(set, ff.keys); ok {
			it := mp4.FreeformText(ff.atom, v)
			it.Type = ff.typ
			items = append(items, it)
		}
	}
	return append(items, mp4.Text("TAUT", StemAuthoringValue))
}

// trackNumber pairs track (or the later track_no) with track_count.
func trackNumber(set TagSet) (int, int, bool) {
	countValue, ok := set[TrackCount]
	if !ok {
		return 0, 0, false
	}
	total, ok := parseInt(countValue)
	if !ok {
		return 0, 0, false
	}
	numberValue, ok := last(set, []Key{Track, TrackNo})
	if !ok {
		return 0, 0, false
	}
	number, ok := parseInt(numberValue)
	if !ok {
		return 0, 0, false
	}
	return number, total, true
}

// Applier writes tag sets into finished containers.
type Applier struct {
	logger *slog.Logger
	client *http.Client
}

// NewApplier returns an applier. A nil client uses a default one with a
// short timeout for remote cover art.
func NewApplier(logger *slog.Logger, client *http.Client) *Applier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Applier{logger: logging.NewComponentLogger(logger, "tagger"), client: client}
}

// Apply writes set into the ilst of the container at path. Items with the
// same atom name are replaced and all others are kept. Cover art that cannot
// be loaded is skipped with a warning.
func (a *Applier) Apply(ctx context.Context, set TagSet, path string) error {
	ctx = services.WithStage(ctx, services.StageTag)
	logger := logging.WithContext(ctx, a.logger)

	file, err := mp4.Open(path)
	if err != nil {
		marker := services.ErrValidation
		if errors.Is(err, os.ErrNotExist) {
			marker = services.ErrNotFound
		}
		return services.Wrap(marker, services.StageTag, "open container", path, err)
	}

	items := Items(set)
	if ref, ok := set[Cover]; ok {
		data, err := a.loadCover(ctx, ref)
		if err != nil {
			logging.WarnWithContext(logger, "cover art skipped", "cover_load_failed",
				logging.String("cover", ref),
				logging.Error(err),
				logging.String(logging.FieldImpact, "container written without cover art"),
				logging.String(logging.FieldErrorHint, "check the cover path or URL"),
			)
		} else {
			items = append(items, mp4.Cover(data, strings.HasSuffix(strings.ToLower(ref), "png")))
		}
	}

	file.SetItems(items)
	if err := file.Save(); err != nil {
		return services.Wrap(services.ErrValidation, services.StageTag, "save container", path, err)
	}
	logger.Info("tags applied",
		logging.String(logging.FieldEventType, "tags_applied"),
		logging.String("path", path),
		logging.Int("items", len(items)),
	)
	return nil
}

// loadCover resolves a filesystem path, file:// URL or http(s) URL.
func (a *Applier) loadCover(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return os.ReadFile(ref)
	}
	switch u.Scheme {
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("fetch cover: %s", resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
		if err != nil {
			return nil, err
		}
		if len(data) > maxCoverBytes {
			return nil, fmt.Errorf("cover exceeds %d bytes", maxCoverBytes)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported cover scheme %q", u.Scheme)
	}
}
