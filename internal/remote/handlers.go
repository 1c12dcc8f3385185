package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"backhaul/internal/queue"
)

// Operation types served by the built-in forwarding handlers.
const (
	OpTypePost   = "http.post"
	OpTypeDelete = "http.delete"
)

// writePayload is the payload schema for the built-in handlers: the remote
// path to write to and, for posts, the JSON body to forward.
type writePayload struct {
	Path string          `json:"path"`
	Body json.RawMessage `json:"body,omitempty"`
}

func decodeWritePayload(raw json.RawMessage) (writePayload, error) {
	var p writePayload
	if len(raw) == 0 {
		return p, fmt.Errorf("payload required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(p.Path) == "" {
		return p, fmt.Errorf("payload path required")
	}
	return p, nil
}

// RegisterDefaultHandlers binds the forwarding handlers to a registry. Hosts
// with their own handlers simply skip this call.
func (c *Client) RegisterDefaultHandlers(registry *queue.Registry) error {
	if err := registry.Register(OpTypePost, c.HandlePost); err != nil {
		return err
	}
	return registry.Register(OpTypeDelete, c.HandleDelete)
}

// HandlePost forwards a queued post payload to the remote endpoint.
func (c *Client) HandlePost(ctx context.Context, raw json.RawMessage) error {
	p, err := decodeWritePayload(raw)
	if err != nil {
		return err
	}
	return c.Post(ctx, p.Path, p.Body)
}

// HandleDelete forwards a queued delete payload to the remote endpoint.
func (c *Client) HandleDelete(ctx context.Context, raw json.RawMessage) error {
	p, err := decodeWritePayload(raw)
	if err != nil {
		return err
	}
	return c.Delete(ctx, p.Path)
}
