package main

import (
	"context"
	"strings"
	"time"

	"backhaul/internal/config"
	"backhaul/internal/ipc"
	"backhaul/internal/queue"
	"backhaul/internal/store"
)

// buildStatusSnapshot collects daemon status over IPC, falling back to direct
// store reads for queue stats when the daemon is not running.
func buildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) *ipc.StatusResponse {
	statusResp := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if !statusResp.Running && cfg != nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		st, openErr := store.Open(cfg)
		if openErr == nil {
			ops, opsErr := store.GetAll[queue.Operation](queryCtx, st, queue.OperationsPartition)
			_ = st.Close()
			if opsErr == nil {
				stats := make(map[string]int, len(ops))
				for _, op := range ops {
					stats[string(op.Status)]++
				}
				statusResp.QueueStats = stats
			}
		}
		statusResp.StorePath = cfg.StorePath()
	}

	return statusResp
}

func systemStatusLines(resp *ipc.StatusResponse, cfg *config.Config, colorize bool) []string {
	lines := make([]string, 0, 6)

	if resp.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "Running", colorize))
		if resp.Online {
			lines = append(lines, renderStatusLine("Connectivity", statusOK, "Online", colorize))
		} else {
			lines = append(lines, renderStatusLine("Connectivity", statusWarn, "Offline (writes are queued locally)", colorize))
		}
		lines = append(lines, reconcilerStatusLine(resp, colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Not running (run `backhaul start`)", colorize))
	}

	if cfg != nil {
		if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
			lines = append(lines, renderStatusLine("Notifications", statusOK, "Configured", colorize))
		} else {
			lines = append(lines, renderStatusLine("Notifications", statusInfo, "Not configured", colorize))
		}
		if strings.TrimSpace(cfg.Remote.BaseURL) != "" {
			lines = append(lines, renderStatusLine("Remote", statusOK, cfg.Remote.BaseURL, colorize))
		} else {
			lines = append(lines, renderStatusLine("Remote", statusError, "base_url is not set", colorize))
		}
	}

	if resp.StorePath != "" {
		lines = append(lines, renderStatusLine("Store", statusInfo, resp.StorePath, colorize))
	}

	return lines
}

func reconcilerStatusLine(resp *ipc.StatusResponse, colorize bool) string {
	rec := resp.Reconciler
	kind := statusOK
	detail := formatStatusLabel(string(rec.State))
	switch rec.State {
	case "syncing":
		kind = statusInfo
		detail = "Syncing"
	case "error":
		kind = statusError
		if rec.LastError != "" {
			detail = rec.LastError
		}
	default:
		if rec.LastSyncTime != nil {
			detail = "Idle (last sync " + rec.LastSyncTime.UTC().Format("2006-01-02 15:04") + ")"
		} else {
			detail = "Idle (no sync yet)"
		}
	}
	return renderStatusLine("Reconciler", kind, detail, colorize)
}
