// Package textutil provides text helpers for tag values and file names.
//
// Tag values read from foreign containers are NFC-normalized before they are
// compared or written back. File names built from stem titles are stripped of
// accents and filesystem-unsafe characters.
package textutil
