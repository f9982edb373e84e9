// Package main hosts the stemforge CLI.
//
// The Cobra command tree wires configuration, logging and the external tool
// adapters into the encode, decode, check, probe and metadata commands. The
// codec itself lives in the internal packages; commands only translate flags
// into jobs and render results.
package main
