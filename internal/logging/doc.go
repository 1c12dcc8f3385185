// Package logging builds the slog loggers used across the daemon and CLI.
//
// It supports console and JSON output formats, multi-destination writers
// (stdout plus a log file), standardized attribute keys for operation and
// component metadata, and context propagation helpers so drain-loop logs carry
// operation identifiers without threading them through every call site.
package logging
