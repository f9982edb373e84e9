// Package stemmeta models the JSON document embedded in a stem container's
// "stem" user-data box: per-component names and colors plus mastering DSP
// defaults.
//
// Pad fills missing entries from the default palette; Decode accepts the box
// payload as raw JSON or base64. LoadFile and WriteFile exchange the document
// with JSON or YAML files, and Report renders the fixed-width text listing.
package stemmeta
