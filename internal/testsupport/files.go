package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	for remaining := size; remaining > 0; {
		n := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= n
	}
}

// ConstantFrames returns n frames of channels samples, all equal to v.
func ConstantFrames(n, channels int, v float32) [][]float32 {
	return GenerateFrames(n, channels, func(int, int) float32 { return v })
}

// GenerateFrames returns n frames whose samples are produced by fn(frame, channel).
func GenerateFrames(n, channels int, fn func(i, ch int) float32) [][]float32 {
	flat := make([]float32, n*channels)
	frames := make([][]float32, n)
	for i := range frames {
		frame := flat[i*channels : (i+1)*channels : (i+1)*channels]
		for ch := range frame {
			frame[ch] = fn(i, ch)
		}
		frames[i] = frame
	}
	return frames
}
