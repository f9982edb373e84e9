package deps

import (
	"os"
	"path/filepath"
	"testing"

	"stemforge/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
	if len(Missing(results)) != 2 {
		t.Fatalf("expected two missing requirements, got %d", len(Missing(results)))
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.MP4Box = "/opt/gpac/MP4Box"
	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected three requirements, got %d", len(reqs))
	}
	if reqs[2].Command != "/opt/gpac/MP4Box" {
		t.Fatalf("expected configured MP4Box, got %q", reqs[2].Command)
	}
	if got := Requirements(nil)[0].Command; got != "ffmpeg" {
		t.Fatalf("expected default ffmpeg, got %q", got)
	}
}

const codecsWithFDK = ` DEA.L. aac                  AAC (Advanced Audio Coding) (decoders: aac aac_fixed ) (encoders: aac libfdk_aac )
 DEA.L. mp3                  MP3 (MPEG audio layer 3) (decoders: mp3float mp3 ) (encoders: libmp3lame )
`

const codecsNativeOnly = ` DEA.L. aac                  AAC (Advanced Audio Coding) (decoders: aac aac_fixed ) (encoders: aac )
`

func TestParseAACEncoders(t *testing.T) {
	got := ParseAACEncoders(codecsWithFDK)
	if len(got) != 2 || got[0] != "aac" || got[1] != "libfdk_aac" {
		t.Fatalf("unexpected encoders %v", got)
	}
	if ParseAACEncoders("no codecs here") != nil {
		t.Fatal("expected nil for output without an AAC line")
	}
}

func TestPreferredAACEncoder(t *testing.T) {
	if got := PreferredAACEncoder(codecsWithFDK); got != FDKAACEncoder {
		t.Fatalf("expected libfdk_aac, got %q", got)
	}
	if got := PreferredAACEncoder(codecsNativeOnly); got != NativeAACEncoder {
		t.Fatalf("expected native aac, got %q", got)
	}
	if got := PreferredAACEncoder(""); got != NativeAACEncoder {
		t.Fatalf("expected native aac fallback, got %q", got)
	}
}
