// Package store provides the local transactional partition store backed by
// SQLite.
//
// Data is organized into named partitions, each holding key/value records with
// opaque JSON values. Callers batch writes through a Tx: mutations are queued
// in memory and applied atomically inside a single database transaction at
// Commit, so nothing becomes visible to readers until the commit succeeds and
// at most one write transaction touches the database at a time.
//
// The store knows nothing about retries or priorities. Its one job beyond
// atomicity is deterministic error classification: every failure surfaced to
// callers maps to one of the Kind values in errors.go so upper layers can
// distinguish quota exhaustion from schema violations from a missing
// partition.
package store
