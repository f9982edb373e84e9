package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// SafeFileName strips accents and unsafe characters, falling back to fallback
// when nothing printable remains.
func SafeFileName(name, fallback string) string {
	out := SanitizeFileName(StripAccents(name))
	out = strings.Trim(out, ".")
	if out == "" {
		return fallback
	}
	return out
}

// StripAccents removes combining marks after canonical decomposition, so
// "Beyoncé" becomes "Beyonce".
func StripAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// NormalizeText trims and NFC-normalizes a value read from an external tag.
func NormalizeText(value string) string {
	return strings.TrimSpace(norm.NFC.String(value))
}
