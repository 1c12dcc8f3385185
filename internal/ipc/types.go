package ipc

import "backhaul/internal/reconciler"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/reconciler status information.
type StatusResponse struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	Online       bool              `json:"online"`
	Reconciler   reconciler.Status `json:"reconciler"`
	QueueStats   map[string]int    `json:"queue_stats"`
	HandlerTypes []string          `json:"handler_types"`
	StorePath    string            `json:"store_path"`
	LockPath     string            `json:"lock_path"`
}

// SyncRequest triggers an explicit reconciliation pass.
type SyncRequest struct{}

// SyncResponse reports sync outcome.
type SyncResponse struct {
	Synced  bool   `json:"synced"`
	Message string `json:"message"`
}

// Operation is the wire representation of a queued operation.
type Operation struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Payload     string `json:"payload,omitempty"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	CreatedAt   string `json:"created_at"`
	LastAttempt string `json:"last_attempt,omitempty"`
	Error       string `json:"error,omitempty"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Operations []Operation `json:"operations"`
}

// QueueDescribeRequest fetches a single operation by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single operation.
type QueueDescribeResponse struct {
	Operation Operation `json:"operation"`
}

// QueueClearRequest removes all operations.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed operations.
type QueueClearResponse struct {
	Removed int `json:"removed"`
}

// QueueRetryRequest retries failed operations. Empty list means all failed
// operations.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of requeued operations.
type QueueRetryResponse struct {
	Requeued int `json:"requeued"`
}

// StoreHealthRequest fetches detailed store diagnostics.
type StoreHealthRequest struct{}

// StoreHealthResponse reports store health information.
type StoreHealthResponse struct {
	Path             string   `json:"path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	Partitions       []string `json:"partitions"`
	TotalRecords     int      `json:"total_records"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
