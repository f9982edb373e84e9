package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemforge/internal/demux"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/tags"
	"stemforge/internal/testsupport"
)

type cliTestEnv struct {
	dir        string
	configPath string
	lab        *testsupport.Lab
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\nwork_dir = %q\nlog_dir = %q\n\n[logging]\nlevel = \"error\"\n",
		filepath.Join(base, "work"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{dir: base, configPath: configPath, lab: testsupport.NewLab()}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.tools = &toolset{
		transcoder: e.lab,
		muxer:      e.lab,
		prober:     e.lab,
		tagger:     tags.NewApplier(nil, nil),
		skipChecks: true,
	}
	cmd := newRootCommandWith(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) addSources(t *testing.T, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(e.dir, name)
		e.lab.AddSource(t, paths[i], testsupport.Track{
			SampleRate: 100,
			Frames:     testsupport.ConstantFrames(200, 2, float32(i)/10),
		})
	}
	return paths
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestEncodeProbeDecodeCheck(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := env.addSources(t, "mix.wav", "drums.wav", "bass.wav")
	tagFile := filepath.Join(env.dir, "tags.yaml")
	if err := os.WriteFile(tagFile, []byte("title: My Song\nartist: Someone\nbpm: 124\n"), 0o644); err != nil {
		t.Fatalf("write tags: %v", err)
	}
	container := filepath.Join(env.dir, "song.stem.m4a")

	out, _, err := env.run(t, append([]string{"encode", "-o", container, "--tags", tagFile}, inputs...)...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	requireContains(t, out, "Created "+container)
	requireContains(t, out, "Drums, Bass")

	out, _, err = env.run(t, "probe", "--json", container)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	var handle demux.Handle
	if err := json.Unmarshal([]byte(out), &handle); err != nil {
		t.Fatalf("decode probe json: %v\n%s", err, out)
	}
	if len(handle.Streams) != 3 || !handle.Streams[0].Enabled || handle.Streams[1].Enabled {
		t.Fatalf("unexpected stream table: %+v", handle.Streams)
	}
	if handle.Streams[1].Title != "song {Drums}" {
		t.Fatalf("stream 1 title = %q", handle.Streams[1].Title)
	}

	out, _, err = env.run(t, "probe", container)
	if err != nil {
		t.Fatalf("probe table: %v", err)
	}
	requireContains(t, out, "song {Bass}")

	outDir := filepath.Join(env.dir, "decoded")
	out, _, err = env.run(t, "decode", "-o", outDir, "--format", "flac", container)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, name := range []string{"song.flac", "song {Drums}.flac", "song {Bass}.flac"} {
		path := filepath.Join(outDir, name)
		requireContains(t, out, path)
		track, ok := env.lab.Source(path)
		if !ok || len(track.Frames) != 200 {
			t.Fatalf("decoded %s: ok=%v frames=%d", name, ok, len(track.Frames))
		}
	}

	out, _, err = env.run(t, "check", container)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "passed")
	requireContains(t, out, "present")
}

func TestEncodeSplitsLargeSets(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := env.addSources(t, "mix.wav", "a.wav", "b.wav", "c.wav", "d.wav", "e.wav", "f.wav", "g.wav")
	tagFile := filepath.Join(env.dir, "tags.json")
	if err := os.WriteFile(tagFile, []byte(`{"title":"X"}`), 0o644); err != nil {
		t.Fatalf("write tags: %v", err)
	}

	out, _, err := env.run(t, append([]string{"encode", "--tags", tagFile, "-o", filepath.Join(env.dir, "set.stem.m4a")}, inputs...)...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, part := range []string{"set [part 1].stem.m4a", "set [part 2].stem.m4a"} {
		requireContains(t, out, part)
		tracks, ok := env.lab.Container(filepath.Join(env.dir, part))
		if !ok {
			t.Fatalf("missing container %s", part)
		}
		if part == "set [part 1].stem.m4a" && len(tracks) != 5 {
			t.Fatalf("part 1 streams = %d, want 5", len(tracks))
		}
		if part == "set [part 2].stem.m4a" && len(tracks) != 4 {
			t.Fatalf("part 2 streams = %d, want 4", len(tracks))
		}
	}
}

func TestEncodeSplitDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := env.addSources(t, "mix.wav", "a.wav", "b.wav", "c.wav", "d.wav", "e.wav")
	output := filepath.Join(env.dir, "set.stem.m4a")
	tagFile := filepath.Join(env.dir, "tags.json")
	if err := os.WriteFile(tagFile, []byte(`{"title":"X"}`), 0o644); err != nil {
		t.Fatalf("write tags: %v", err)
	}

	if _, _, err := env.run(t, append([]string{"encode", "--split=false", "--tags", tagFile, "-o", output}, inputs...)...); err != nil {
		t.Fatalf("encode: %v", err)
	}
	tracks, ok := env.lab.Container(output)
	if !ok {
		t.Fatalf("missing container %s", output)
	}
	if len(tracks) != 6 {
		t.Fatalf("streams = %d, want 6", len(tracks))
	}
}

func TestCheckWritesNothing(t *testing.T) {
	env := setupCLITestEnv(t)
	container := filepath.Join(env.dir, "song.stem.m4a")
	env.lab.AddContainer(t, container, []testsupport.Track{
		{SampleRate: 100, Frames: testsupport.ConstantFrames(20, 2, 0)},
		{SampleRate: 100, Frames: testsupport.ConstantFrames(20, 2, 0)},
	}, nil)
	before, err := os.ReadDir(env.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	out, _, err := env.run(t, "--log-level", "debug", "check", container)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "passed")
	after, err := os.ReadDir(env.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("check changed %s: %d entries before, %d after", env.dir, len(before), len(after))
	}
	for _, dir := range []string{"work", "logs"} {
		if _, err := os.Stat(filepath.Join(env.dir, dir)); !os.IsNotExist(err) {
			t.Fatalf("expected no %s directory, stat err = %v", dir, err)
		}
	}
}

func TestEncodeRejectsMissingComponents(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := env.addSources(t, "mix.wav")
	_, _, err := env.run(t, "encode", inputs[0])
	if !errors.Is(err, services.ErrInvalidStemCount) {
		t.Fatalf("expected ErrInvalidStemCount, got %v", err)
	}
	if calls := env.lab.Calls(); len(calls) != 0 {
		t.Fatalf("expected no tool calls, got %v", calls)
	}
}

func TestDecodeSelectedStream(t *testing.T) {
	env := setupCLITestEnv(t)
	container := filepath.Join(env.dir, "track.stem.m4a")
	meta := stemmeta.Default(2)
	tracks := []testsupport.Track{
		{SampleRate: 100, Frames: testsupport.ConstantFrames(50, 2, 0)},
		{SampleRate: 100, Frames: testsupport.ConstantFrames(50, 2, 0.1)},
		{SampleRate: 100, Frames: testsupport.ConstantFrames(50, 2, 0.2)},
	}
	env.lab.AddContainer(t, container, tracks, &meta)

	outDir := filepath.Join(env.dir, "out")
	if _, _, err := env.run(t, "decode", "--streams", "2", "--start", "0.1", "-o", outDir, container); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "track {Bass}.wav" {
		t.Fatalf("unexpected outputs: %v", entries)
	}
	track, _ := env.lab.Source(filepath.Join(outDir, "track {Bass}.wav"))
	if len(track.Frames) != 40 {
		t.Fatalf("frames = %d, want 40", len(track.Frames))
	}
}

func TestCheckFailsOnLengthMismatch(t *testing.T) {
	env := setupCLITestEnv(t)
	container := filepath.Join(env.dir, "bad.stem.m4a")
	env.lab.AddContainer(t, container, []testsupport.Track{
		{SampleRate: 100, Frames: testsupport.ConstantFrames(1000, 2, 0)},
		{SampleRate: 100, Frames: testsupport.ConstantFrames(950, 2, 0)},
	}, nil)

	out, _, err := env.run(t, "check", container)
	if !errors.Is(err, services.ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
	requireContains(t, out, "failed")
	requireContains(t, err.Error(), "verify")

	outDir := filepath.Join(env.dir, "out")
	if _, _, err := env.run(t, "decode", "--check", "-o", outDir, container); !errors.Is(err, services.ErrIntegrityViolation) {
		t.Fatalf("strict decode: expected ErrIntegrityViolation, got %v", err)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("strict decode must not create %s", outDir)
	}

	_, stderr, err := env.run(t, "decode", "-o", outDir, container)
	if err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	requireContains(t, stderr, "truncated")
}

func TestMetadataDump(t *testing.T) {
	env := setupCLITestEnv(t)
	container := filepath.Join(env.dir, "song.stem.m4a")
	meta := stemmeta.Default(4)
	tracks := make([]testsupport.Track, 5)
	for i := range tracks {
		tracks[i] = testsupport.Track{SampleRate: 100, Frames: testsupport.ConstantFrames(10, 2, 0)}
	}
	env.lab.AddContainer(t, container, tracks, &meta)

	jsonPath := filepath.Join(env.dir, "meta.json")
	reportPath := filepath.Join(env.dir, "meta.txt")
	if _, _, err := env.run(t, "metadata", "--json", jsonPath, "--report", reportPath, container); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	loaded, err := stemmeta.LoadFile(jsonPath)
	if err != nil {
		t.Fatalf("load dumped metadata: %v", err)
	}
	if len(loaded.Stems) != 4 || loaded.Stems[3].Name != "Vox" {
		t.Fatalf("unexpected dumped stems: %+v", loaded.Stems)
	}
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	requireContains(t, string(report), "Track   2")
	requireContains(t, string(report), "#D55E00")

	out, _, err := env.run(t, "metadata", container)
	if err != nil {
		t.Fatalf("metadata stdout: %v", err)
	}
	requireContains(t, out, "Track   1")
}

func TestDepsReportsMissingTools(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("STEMFORGE_FFMPEG", "stemforge-missing-ffmpeg")
	out, _, err := env.run(t, "deps")
	if err == nil {
		t.Fatal("expected deps to fail with a missing binary")
	}
	requireContains(t, out, "stemforge-missing-ffmpeg")
}

func TestOutputNames(t *testing.T) {
	unique := &demux.Buffers{Streams: []int{0, 1}, Titles: []string{"Song", "Song {Drums}"}}
	if got := outputNames(unique, "Song"); got[0] != "Song" || got[1] != "Song {Drums}" {
		t.Fatalf("unique names = %v", got)
	}
	dup := &demux.Buffers{Streams: []int{0, 2}, Titles: []string{"SoundHandler", "SoundHandler"}}
	if got := outputNames(dup, "Song"); got[0] != "Song.0" || got[1] != "Song.2" {
		t.Fatalf("duplicate names = %v", got)
	}
}
