package mux_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stemforge/internal/mp4"
	"stemforge/internal/mux"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/tags"
	"stemforge/internal/testsupport"
)

func TestBuildArgs(t *testing.T) {
	req := mux.MuxRequest{
		Output:     "/out/song.stem.m4a",
		Mixdown:    "/in/mix.m4a",
		Components: []string{"/in/drums.m4a", "/in/bass.m4a"},
		Metadata:   "e30=",
	}
	got := mux.BuildArgs(req, "/out/.mux-song.stem.m4a")
	want := []string{
		"-add", "/in/mix.m4a#ID=Z", "/out/.mux-song.stem.m4a",
		"-add", "/in/drums.m4a#ID=Z:disable",
		"-add", "/in/bass.m4a#ID=Z:disable",
		"-brand", "M4A:0", "-rb", "isom", "-rb", "iso2",
		"-udta", "0:type=stem:src=base64,e30=",
		"-quiet",
	}
	assert.Equal(t, want, got)
}

func TestMP4BoxCommitsTempOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "song.stem.m4a")
	require.NoError(t, os.WriteFile(output, []byte("stale"), 0o644))

	m := mux.NewMP4Box(testsupport.NewConfig(t), nil)
	var gotBinary string
	m.WithRunner(services.RunnerFunc(func(ctx context.Context, cmd services.Command) ([]byte, error) {
		gotBinary = cmd.Binary
		return nil, os.WriteFile(cmd.Args[2], []byte("container"), 0o644)
	}))

	err := m.Mux(context.Background(), mux.MuxRequest{Output: output, Mixdown: "mix.m4a", Metadata: "e30="})
	require.NoError(t, err)
	assert.Equal(t, "MP4Box", gotBinary)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "container", string(data))
	_, err = os.Stat(filepath.Join(dir, ".mux-song.stem.m4a"))
	assert.True(t, os.IsNotExist(err))
}

func TestMP4BoxFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "song.stem.m4a")
	m := mux.NewMP4Box(nil, nil)
	m.WithRunner(services.RunnerFunc(func(ctx context.Context, cmd services.Command) ([]byte, error) {
		_ = os.WriteFile(cmd.Args[2], []byte("partial"), 0o644)
		return nil, &services.ProcessError{Tool: "MP4Box", ExitCode: 1, Stderr: "bad input"}
	}))

	err := m.Mux(context.Background(), mux.MuxRequest{Output: output, Mixdown: "mix.m4a"})
	require.ErrorIs(t, err, services.ErrExternalTool)
	assert.Equal(t, services.StageMux, services.StageOf(err))
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

type fixture struct {
	lab        *testsupport.Lab
	dir        string
	mixdown    string
	components []string
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	lab := testsupport.NewLab()
	dir := t.TempDir()
	fx := fixture{lab: lab, dir: dir, mixdown: filepath.Join(dir, "song.wav")}
	lab.AddSource(t, fx.mixdown, testsupport.Track{SampleRate: 44100, Frames: testsupport.ConstantFrames(100, 2, 0.5)})
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, "song."+string(rune('0'+i))+".wav")
		lab.AddSource(t, path, testsupport.Track{SampleRate: 44100, Frames: testsupport.ConstantFrames(100, 2, float32(i)/10)})
		fx.components = append(fx.components, path)
	}
	return fx
}

func (fx fixture) encoder(t *testing.T, opts ...mux.Option) *mux.Encoder {
	cfg := testsupport.NewConfig(t)
	return mux.NewEncoder(cfg, fx.lab, fx.lab, tags.NewApplier(nil, nil), nil, opts...)
}

func TestEncodeBuildsStemContainer(t *testing.T) {
	fx := newFixture(t, 2)
	var steps []mux.Progress
	enc := fx.encoder(t, mux.WithProgress(func(p mux.Progress) { steps = append(steps, p) }))

	output, err := enc.Encode(context.Background(), mux.EncodeJob{
		Mixdown:    fx.mixdown,
		Components: fx.components,
		Tags:       tags.TagSet{tags.Title: "Song"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.dir, "song.stem.m4a"), output)

	f, err := mp4.Open(output)
	require.NoError(t, err)
	tracks, err := f.AudioTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.True(t, tracks[0].Enabled())
	assert.False(t, tracks[1].Enabled())
	assert.False(t, tracks[2].Enabled())

	raw, ok := f.UserData("stem")
	require.True(t, ok)
	meta, err := stemmeta.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []stemmeta.Entry{{Name: "Drums", Color: "#009E73"}, {Name: "Bass", Color: "#D55E00"}}, meta.Stems)

	taut, ok := f.Lookup("TAUT")
	require.True(t, ok)
	assert.Equal(t, "STEM", taut.String())
	title, ok := f.Lookup("\xa9nam")
	require.True(t, ok)
	assert.Equal(t, "Song", title.String())

	require.Len(t, steps, 5)
	assert.Equal(t, mux.Progress{Step: services.StageTag, Done: 5, Total: 5}, steps[4])

	_, err = os.Stat(filepath.Join(fx.dir, "song.m4a"))
	assert.True(t, os.IsNotExist(err), "converted mixdown is removed")
	_, err = os.Stat(output + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file is removed")
}

func TestEncodeKeepsBoxKeyOrder(t *testing.T) {
	fx := newFixture(t, 1)
	output, err := fx.encoder(t).Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown, Components: fx.components})
	require.NoError(t, err)

	f, err := mp4.Open(output)
	require.NoError(t, err)
	raw, ok := f.UserData("stem")
	require.True(t, ok)
	doc := string(raw)
	assert.Less(t, strings.Index(doc, `"mastering_dsp"`), strings.Index(doc, `"version"`))
	assert.Less(t, strings.Index(doc, `"version"`), strings.Index(doc, `"stems"`))
}

func TestEncodeRejectsStemCount(t *testing.T) {
	fx := newFixture(t, 0)
	enc := fx.encoder(t)
	_, err := enc.Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown})
	require.ErrorIs(t, err, services.ErrInvalidStemCount)

	nine := make([]string, 9)
	for i := range nine {
		nine[i] = fx.mixdown
	}
	_, err = enc.Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown, Components: nine})
	require.ErrorIs(t, err, services.ErrInvalidStemCount)
	assert.Empty(t, fx.lab.Calls(), "no tool runs before validation")
}

func TestEncodeNormalizeFailureLeavesNoOutput(t *testing.T) {
	fx := newFixture(t, 3)
	boom := services.Wrap(services.ErrExternalTool, services.StageNormalize, "convert input", "song.2.wav", errors.New("exit 1"))
	fx.lab.Fail("normalize", fx.components[1], boom)

	_, err := fx.encoder(t).Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown, Components: fx.components})
	require.ErrorIs(t, err, services.ErrExternalTool)
	assert.Equal(t, services.StageNormalize, services.StageOf(err))
	_, statErr := os.Stat(filepath.Join(fx.dir, "song.stem.m4a"))
	assert.True(t, os.IsNotExist(statErr))
	for _, call := range fx.lab.Calls() {
		assert.False(t, strings.HasPrefix(call, "mux "), "mux must not run after a failed normalize")
	}
}

func TestEncodeRejectsIntermediateCollision(t *testing.T) {
	cases := map[string][]string{
		"converted input over passthrough mixdown": {"song.m4a", "song.wav"},
		"converted inputs sharing a root":          {"mix.wav", "vox.wav", "vox.flac"},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			lab := testsupport.NewLab()
			dir := t.TempDir()
			paths := make([]string, len(files))
			for i, f := range files {
				paths[i] = filepath.Join(dir, f)
				lab.AddSource(t, paths[i], testsupport.Track{SampleRate: 44100, Frames: testsupport.ConstantFrames(10, 2, 0.1)})
				require.NoError(t, os.WriteFile(paths[i], []byte("input"), 0o644))
			}
			enc := mux.NewEncoder(testsupport.NewConfig(t), lab, lab, nil, nil)

			_, err := enc.Encode(context.Background(), mux.EncodeJob{Mixdown: paths[0], Components: paths[1:]})
			require.ErrorIs(t, err, services.ErrValidation)
			assert.Equal(t, services.StageNormalize, services.StageOf(err))
			assert.Empty(t, lab.Calls(), "no tool runs for a colliding job")
			for _, p := range paths {
				data, readErr := os.ReadFile(p)
				require.NoError(t, readErr)
				assert.Equal(t, "input", string(data))
			}
		})
	}
}

func TestEncodeFailsWhenOutputLocked(t *testing.T) {
	fx := newFixture(t, 1)
	output := filepath.Join(fx.dir, "song.stem.m4a")
	held := flock.New(output + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	_, err = fx.encoder(t).Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown, Components: fx.components})
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "another encode")
}

func TestEncodeWithoutOutputLock(t *testing.T) {
	fx := newFixture(t, 3)
	output := filepath.Join(fx.dir, "song.stem.m4a")
	held := flock.New(output + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	cfg := testsupport.NewConfig(t, testsupport.WithOutputLock(false))
	enc := mux.NewEncoder(cfg, fx.lab, fx.lab, nil, nil, mux.WithWorkers(1))
	got, err := enc.Encode(context.Background(), mux.EncodeJob{Mixdown: fx.mixdown, Components: fx.components})
	require.NoError(t, err)
	assert.Equal(t, output, got)
	tracks, ok := fx.lab.Container(output)
	require.True(t, ok)
	assert.Len(t, tracks, 4)
}

func TestSplitSevenComponents(t *testing.T) {
	components := []string{"1.wav", "2.wav", "3.wav", "4.wav", "5.wav", "6.wav", "7.wav"}
	entries := []stemmeta.Entry{
		{Name: "Kick", Color: "#111111"}, {Name: "Snare", Color: "#222222"},
		{Name: "Hats", Color: "#333333"}, {Name: "Bass", Color: "#444444"},
		{Name: "Pad", Color: "#555555"}, {Name: "Lead", Color: "#666666"},
		{Name: "Vox", Color: "#777777"},
	}
	meta := stemmeta.New(entries, len(entries))
	job := mux.EncodeJob{
		Mixdown:    "/music/Song.wav",
		Components: components,
		Tags:       tags.TagSet{tags.Title: "Song", tags.Artist: "Band"},
		Metadata:   &meta,
	}

	parts := mux.Split(job)
	require.Len(t, parts, 2)
	assert.Equal(t, "Song [part 1]", parts[0].Tags[tags.Title])
	assert.Equal(t, "Song [part 2]", parts[1].Tags[tags.Title])
	assert.Equal(t, "Band", parts[1].Tags[tags.Artist])
	assert.Equal(t, "/music/Song [part 1].stem.m4a", parts[0].OutputPath())
	assert.Equal(t, "/music/Song [part 2].stem.m4a", parts[1].OutputPath())
	assert.Equal(t, components[:4], parts[0].Components)
	assert.Equal(t, components[4:], parts[1].Components)
	assert.Equal(t, entries[4:], parts[1].StemMetadata().Stems)
	assert.Equal(t, "Song", job.Tags[tags.Title], "the original job is untouched")
}

func TestSplitSmallJobUnchanged(t *testing.T) {
	job := mux.EncodeJob{Mixdown: "a.wav", Components: []string{"1.wav", "2.wav"}}
	parts := mux.Split(job)
	require.Len(t, parts, 1)
	assert.Equal(t, "a.stem.m4a", parts[0].OutputPath())
}

func TestStemMetadataPadsEntries(t *testing.T) {
	job := mux.EncodeJob{Components: make([]string, 6)}
	got := job.StemMetadata().Stems
	require.Len(t, got, 6)
	assert.Equal(t, "Vox", got[3].Name)
	assert.Equal(t, stemmeta.Entry{Name: "Stem_5", Color: "#000000"}, got[4])

	short := stemmeta.Metadata{Stems: []stemmeta.Entry{{Name: "A", Color: "#FFFFFF"}, {Name: "B", Color: "#FFFFFF"}, {Name: "C", Color: "#FFFFFF"}}}
	job = mux.EncodeJob{Components: make([]string, 2), Metadata: &short}
	assert.Len(t, job.StemMetadata().Stems, 2)
}

func TestOutputNaming(t *testing.T) {
	assert.Equal(t, "/a/b.stem.m4a", mux.DefaultOutput("/a/b.wav"))
	assert.Equal(t, "/a/b.stem.m4a", mux.DefaultOutput("/a/b.stem.m4a"))
	assert.Equal(t, "x.stem.m4a", mux.EnsureStemSuffix("x.m4a"))
	assert.Equal(t, "x.STEM.M4A", mux.EnsureStemSuffix("x.STEM.M4A"))
	assert.Equal(t, "x.stem.m4a", mux.EnsureStemSuffix("x"))
}

func TestDiscoverNumbered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"track.wav", "track.1.wav", "track.2.wav", "track.3.wav", "track.5.wav"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 4)
	}
	got, err := mux.DiscoverNumbered(filepath.Join(dir, "track.wav"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "track.1.wav"),
		filepath.Join(dir, "track.2.wav"),
		filepath.Join(dir, "track.3.wav"),
	}, got)

	got, err = mux.DiscoverNumbered(filepath.Join(dir, "track.0.wav"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = mux.DiscoverNumbered(filepath.Join(dir, "other.wav"))
	require.ErrorIs(t, err, services.ErrInvalidStemCount)
}
