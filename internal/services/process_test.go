package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemforge/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestExecRunnerCapturesStdout(t *testing.T) {
	bin := writeScript(t, "cat")
	out, err := services.ExecRunner{}.Run(context.Background(), services.Command{
		Tool:   "cat",
		Binary: bin,
		Stdin:  strings.NewReader("pcm-bytes"),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if string(out) != "pcm-bytes" {
		t.Fatalf("unexpected stdout %q", out)
	}
}

func TestExecRunnerReportsExitStatus(t *testing.T) {
	bin := writeScript(t, "echo 'codec not found' >&2\nexit 3")
	_, err := services.ExecRunner{}.Run(context.Background(), services.Command{Tool: "ffmpeg", Binary: bin, Args: []string{"-i", "in.wav"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *services.ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessError, got %T", err)
	}
	if perr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", perr.ExitCode)
	}
	if !strings.Contains(perr.Stderr, "codec not found") {
		t.Fatalf("expected stderr captured, got %q", perr.Stderr)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected ErrExternalTool marker")
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := services.ExecRunner{}.Run(context.Background(), services.Command{Tool: "MP4Box", Binary: "clearly-not-present-binary"})
	var perr *services.ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if perr.ExitCode != -1 {
		t.Fatalf("expected exit code -1 for start failure, got %d", perr.ExitCode)
	}
}
