// Package services defines shared utilities consumed by the codec stages and
// their external tool adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs and stage names for logging.
//   - Structured error markers plus the Wrap helper that record which stage
//     (normalize, mux, tag, probe, extract, verify) failed.
//   - ProcessError and the Runner abstraction that make external command
//     execution testable and keep exit codes and stderr attached to failures.
//
// Use these helpers when wiring new stage logic so error reporting stays
// uniform across the encoder and decoder.
package services
