// Package daemon coordinates the long-running Backhaul process.
//
// It wires configuration, the local store, the retry queue, the connectivity
// monitor, and the sync coordinator into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon exposes the queue
// maintenance helpers and status surface consumed over IPC.
//
// Keep orchestration logic here: reconciliation behavior lives in the queue
// and reconciler packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
