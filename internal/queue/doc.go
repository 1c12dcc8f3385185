// Package queue implements the persisted retry queue that guarantees delivery
// of offline mutations.
//
// Operations enter through Enqueue, are persisted to the local store before
// the call returns, and live in a priority-ordered in-memory list while
// active. A single sequential drain loop dispatches the head operation to its
// registered handler, retrying failures with exponential backoff until the
// attempt ceiling is reached, at which point the operation becomes terminally
// failed and stays queryable until cleared.
//
// Store writes that track queue metadata follow an explicit
// availability-over-durability policy: when persisting a status change fails,
// the error is logged and the in-memory operation is kept so no work is lost.
// Restart recovery rebuilds the in-memory queue from the store via Load.
package queue
