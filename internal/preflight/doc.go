// Package preflight provides readiness checks run before an encode starts.
//
// The checks confirm the external tools are installed, that every input is
// readable, and that the output directory is writable with room for the
// normalized intermediates and the finished container. The CLI "deps"
// command reuses CheckSystemDeps for its table.
package preflight
