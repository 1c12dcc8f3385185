// Package connectivity tracks whether the remote endpoint is reachable and
// turns online transitions into queue drains.
//
// A Source reports the current reachability level and emits transition events.
// The Monitor implements Source by probing an HTTP endpoint on an interval;
// Manual implements it for tests and embedders with their own signal. The
// Scheduler subscribes to a Source and triggers draining when connectivity
// returns. The policy is level triggered: starting a scheduler against a
// source that is already online behaves the same as a fresh offline-to-online
// transition.
package connectivity
