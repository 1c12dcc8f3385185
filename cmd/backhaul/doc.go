// Package main hosts the Backhaul CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: status reporting, explicit sync requests, queue
// maintenance, and configuration scaffolding. Queue inspection falls back to
// direct store access when the daemon is not running, so the local write log
// stays visible offline.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
