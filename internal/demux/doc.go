// Package demux opens stem containers and decodes their streams back into
// sample buffers.
//
// Probe reads the stream table once and recovers per-stream titles from the
// embedded stem box. Extract decodes either one stem per audio stream or,
// with a ChannelReader, channel groups packed into a single stream.
package demux
