package integrity_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stemforge/internal/demux"
	"stemforge/internal/integrity"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/testsupport"
)

func track(n int) testsupport.Track {
	return testsupport.Track{SampleRate: 100, Frames: testsupport.ConstantFrames(n, 2, 0.25)}
}

func checker(t *testing.T, lab *testsupport.Lab) *integrity.Checker {
	t.Helper()
	return integrity.NewChecker(demux.NewDemuxer(testsupport.NewConfig(t), lab, lab, nil), nil)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestVerifyValidContainer(t *testing.T) {
	dir := t.TempDir()
	lab := testsupport.NewLab()
	path := filepath.Join(dir, "song.stem.m4a")
	meta := stemmeta.Default(2)
	lab.AddContainer(t, path, []testsupport.Track{track(300), track(300), track(300)}, &meta)
	before := listDir(t, dir)

	report, err := checker(t, lab).Verify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Streams)
	assert.Equal(t, 2, report.Channels)
	assert.Equal(t, 100, report.SampleRate)
	assert.Equal(t, 300, report.Samples)
	assert.Equal(t, []float64{3, 3, 3}, report.Durations)
	assert.Equal(t, integrity.BoxPresent, report.StemBox)
	assert.Equal(t, "song {Drums}", report.Titles[1])
	assert.Equal(t, before, listDir(t, dir))
}

func TestVerifyWithoutBox(t *testing.T) {
	dir := t.TempDir()
	lab := testsupport.NewLab()
	path := filepath.Join(dir, "song.stem.m4a")
	lab.AddContainer(t, path, []testsupport.Track{track(10), track(10)}, nil)

	report, err := checker(t, lab).Verify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, integrity.BoxAbsent, report.StemBox)
}

func TestVerifyLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	lab := testsupport.NewLab()
	path := filepath.Join(dir, "song.stem.m4a")
	lab.AddContainer(t, path, []testsupport.Track{track(1000), track(950)}, nil)
	before := listDir(t, dir)

	_, err := checker(t, lab).Verify(context.Background(), path)
	require.ErrorIs(t, err, services.ErrIntegrityViolation)
	assert.Contains(t, err.Error(), "verify")
	assert.Equal(t, before, listDir(t, dir))
}

func TestVerifyChannelMismatch(t *testing.T) {
	dir := t.TempDir()
	lab := testsupport.NewLab()
	path := filepath.Join(dir, "song.stem.m4a")
	mono := testsupport.Track{SampleRate: 100, Frames: testsupport.ConstantFrames(10, 1, 0)}
	lab.AddContainer(t, path, []testsupport.Track{track(10), mono}, nil)

	_, err := checker(t, lab).Verify(context.Background(), path)
	require.ErrorIs(t, err, services.ErrChannelMismatch)
}

func TestVerifyCorruptBox(t *testing.T) {
	dir := t.TempDir()
	lab := testsupport.NewLab()
	path := filepath.Join(dir, "song.stem.m4a")
	lab.AddContainerBox(t, path, []testsupport.Track{track(10), track(10)}, []byte("not json"))

	_, err := checker(t, lab).Verify(context.Background(), path)
	require.ErrorIs(t, err, services.ErrMetadataBoxCorrupt)
}
