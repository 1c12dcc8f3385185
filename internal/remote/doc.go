// Package remote talks to the backend endpoint that queued writes are
// reconciled against. It provides the HTTP client used by the daemon's
// default operation handlers and the connectivity probe.
package remote
