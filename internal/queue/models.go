package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a queued operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether a status counts toward the pending workload.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// Priority orders dispatch; lower values are served first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return PriorityHigh, true
	case "medium", "normal":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	default:
		return 0, false
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Operation is one pending mutation persisted in the local store.
type Operation struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    Priority        `json:"priority"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	Error       string          `json:"error,omitempty"`

	// seq fixes FIFO order within a priority class. Assigned on insertion,
	// never persisted; hydration reassigns it from store insertion order.
	seq uint64
}

// IsActive reports whether the operation counts toward the pending workload.
func (o Operation) IsActive() bool {
	return o.Status.IsActive()
}

// SetFailed marks the operation terminally failed with the given reason.
func (o *Operation) SetFailed(message string) {
	o.Status = StatusFailed
	o.Error = message
}
