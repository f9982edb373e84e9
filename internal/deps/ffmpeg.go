package deps

import (
	"regexp"
	"strings"
)

// Encoder names selected for AAC output. The Fraunhofer encoder is preferred
// when the local ffmpeg build ships it.
const (
	FDKAACEncoder    = "libfdk_aac"
	NativeAACEncoder = "aac"
)

var encodersPattern = regexp.MustCompile(`\(encoders: ([^)]*)\)`)

// ParseAACEncoders extracts the encoder list from `ffmpeg -codecs` output for
// the AAC codec line.
func ParseAACEncoders(codecsOutput string) []string {
	for _, line := range strings.Split(codecsOutput, "\n") {
		if !strings.Contains(line, "AAC (Advanced Audio Coding)") {
			continue
		}
		match := encodersPattern.FindStringSubmatch(line)
		if match == nil {
			return nil
		}
		return strings.Fields(match[1])
	}
	return nil
}

// PreferredAACEncoder picks libfdk_aac when listed, otherwise the native encoder.
func PreferredAACEncoder(codecsOutput string) string {
	for _, enc := range ParseAACEncoders(codecsOutput) {
		if enc == FDKAACEncoder {
			return FDKAACEncoder
		}
	}
	return NativeAACEncoder
}
