package mux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/tags"
	"stemforge/internal/transcode"
)

// StemSuffix is the file ending of every stem container.
const StemSuffix = ".stem.m4a"

// PartSize is the number of components per container when a job is split.
const PartSize = 4

// EncodeJob describes one container build. It is passed by value and never
// mutated once built.
type EncodeJob struct {
	Mixdown    string
	Components []string
	// Output defaults to DefaultOutput(Mixdown).
	Output string
	Codec  transcode.Codec
	Tags   tags.TagSet
	// Metadata supplies stem entries and mastering settings. Nil uses the
	// default palette and mastering block.
	Metadata *stemmeta.Metadata
}

// StemCount validates the component count.
func (j EncodeJob) StemCount() (int, error) {
	n := len(j.Components)
	if n < 1 || n > stemmeta.MaxStems {
		return n, services.Wrap(services.ErrInvalidStemCount, services.StageMux, "validate job",
			fmt.Sprintf("%d components (want 1 to %d)", n, stemmeta.MaxStems), nil)
	}
	return n, nil
}

// OutputPath returns the container path for the job.
func (j EncodeJob) OutputPath() string {
	if strings.TrimSpace(j.Output) == "" {
		return DefaultOutput(j.Mixdown)
	}
	return EnsureStemSuffix(j.Output)
}

// StemMetadata returns the box document for the job: entries padded to the
// component count with the job's mastering settings, or defaults.
func (j EncodeJob) StemMetadata() stemmeta.Metadata {
	n := len(j.Components)
	if j.Metadata == nil {
		return stemmeta.Default(n)
	}
	m := stemmeta.New(j.Metadata.Stems, n)
	m.MasteringDSP = j.Metadata.MasteringDSP
	return m
}

// DefaultOutput returns <mixdown root>.stem.m4a beside the mixdown.
func DefaultOutput(mixdown string) string {
	return trimStemExt(mixdown) + StemSuffix
}

// EnsureStemSuffix rewrites path to end in .stem.m4a.
func EnsureStemSuffix(path string) string {
	if strings.HasSuffix(strings.ToLower(path), StemSuffix) {
		return path
	}
	return trimStemExt(path) + StemSuffix
}

func trimStemExt(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, StemSuffix) {
		return path[:len(path)-len(StemSuffix)]
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// PartTitleSuffix is appended to the title of part n of a split job.
func PartTitleSuffix(n int) string {
	return " [part " + strconv.Itoa(n) + "]"
}

// Split divides a job with more than PartSize components into parts of up
// to PartSize components each. Every part keeps the mixdown, gets its slice
// of the stem entries, a " [part N]" title suffix and an output named
// "<root> [part N].stem.m4a". Jobs that fit one container are returned as is.
func Split(job EncodeJob) []EncodeJob {
	if len(job.Components) <= PartSize {
		return []EncodeJob{job}
	}
	meta := job.StemMetadata()
	root := trimStemExt(job.OutputPath())
	var parts []EncodeJob
	for from, n := 0, 1; from < len(job.Components); from, n = from+PartSize, n+1 {
		to := min(from+PartSize, len(job.Components))
		partMeta := meta.Slice(from, to)
		part := job
		part.Components = append([]string(nil), job.Components[from:to]...)
		part.Output = root + PartTitleSuffix(n) + StemSuffix
		part.Metadata = &partMeta
		part.Tags = job.Tags.WithTitleSuffix(PartTitleSuffix(n))
		parts = append(parts, part)
	}
	return parts
}

// DiscoverNumbered finds the components of a numbered stem set: for a
// mixdown "<root>.ext" (or "<root>.0.ext") the components are
// "<root>.1.ext" through "<root>.8.ext", stopping at the first gap.
func DiscoverNumbered(mixdown string) ([]string, error) {
	ext := filepath.Ext(mixdown)
	root := strings.TrimSuffix(strings.TrimSuffix(mixdown, ext), ".0")
	var components []string
	for i := 1; i <= stemmeta.MaxStems; i++ {
		candidate := root + "." + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); err != nil {
			break
		}
		components = append(components, candidate)
	}
	if len(components) == 0 {
		return nil, services.Wrap(services.ErrInvalidStemCount, services.StageMux, "discover components",
			fmt.Sprintf("no %s.1%s next to the mixdown", filepath.Base(root), ext), nil)
	}
	return components, nil
}
