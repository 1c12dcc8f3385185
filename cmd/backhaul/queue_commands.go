package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"backhaul/internal/ipc"
	"backhaul/internal/queue"
	"backhaul/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pending writes",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				var stats map[string]int
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.QueueStats
				} else {
					ops, err := loadStoredOperations(cmd.Context(), st)
					if err != nil {
						return err
					}
					stats = make(map[string]int, len(ops))
					for _, op := range ops {
						stats[op.Status]++
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(queueStatusColumns, rows)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				ops, err := fetchOperations(cmd.Context(), client, st, listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"operations": ops})
				}
				if len(ops) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(queueListColumns, buildQueueListRows(ops))
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by operation status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <operationID>",
		Short: "Show a single operation in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				var op ipc.Operation
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					op = resp.Operation
				} else {
					ops, err := loadStoredOperations(cmd.Context(), st)
					if err != nil {
						return err
					}
					found := false
					for _, candidate := range ops {
						if candidate.ID == id {
							op = candidate
							found = true
							break
						}
					}
					if !found {
						return fmt.Errorf("operation %q not found", id)
					}
				}

				if asJSON {
					return writeJSON(cmd, op)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:           %s\n", op.ID)
				fmt.Fprintf(out, "Type:         %s\n", op.Type)
				fmt.Fprintf(out, "Priority:     %s\n", formatStatusLabel(op.Priority))
				fmt.Fprintf(out, "Status:       %s\n", formatStatusLabel(op.Status))
				fmt.Fprintf(out, "Attempts:     %d/%d\n", op.Attempts, op.MaxAttempts)
				fmt.Fprintf(out, "Created:      %s\n", formatDisplayTime(op.CreatedAt))
				if op.LastAttempt != "" {
					fmt.Fprintf(out, "Last attempt: %s\n", formatDisplayTime(op.LastAttempt))
				}
				fmt.Fprintf(out, "Payload:      %s\n", formatPayloadSnippet(op.Payload))
				if op.Error != "" {
					fmt.Fprintf(out, "Error:        %s\n", op.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all queued operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				out := cmd.OutOrStdout()
				if client != nil {
					resp, err := client.QueueClear()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d operations\n", resp.Removed)
					return nil
				}

				removed, err := clearStoredOperations(cmd.Context(), st)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d operations\n", removed)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [operationID...]",
		Short: "Requeue failed operations",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				if id := strings.TrimSpace(arg); id != "" {
					ids = append(ids, id)
				}
			}

			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				out := cmd.OutOrStdout()
				if client != nil {
					resp, err := client.QueueRetry(ids)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Requeued %d failed operations\n", resp.Requeued)
					return nil
				}

				requeued, err := retryStoredFailed(cmd.Context(), st, ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Requeued %d failed operations\n", requeued)
				return nil
			})
		},
	}
}

func fetchOperations(ctx context.Context, client *ipc.Client, st *store.Store, statuses []string) ([]ipc.Operation, error) {
	if client != nil {
		resp, err := client.QueueList(statuses)
		if err != nil {
			return nil, err
		}
		return resp.Operations, nil
	}

	wanted := make(map[queue.Status]struct{}, len(statuses))
	for _, raw := range statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", raw)
		}
		wanted[status] = struct{}{}
	}

	ops, err := loadStoredOperations(ctx, st)
	if err != nil {
		return nil, err
	}
	if len(wanted) == 0 {
		return ops, nil
	}
	filtered := ops[:0]
	for _, op := range ops {
		if _, ok := wanted[queue.Status(op.Status)]; ok {
			filtered = append(filtered, op)
		}
	}
	return filtered, nil
}

func loadStoredOperations(ctx context.Context, st *store.Store) ([]ipc.Operation, error) {
	stored, err := store.GetAll[queue.Operation](ctx, st, queue.OperationsPartition)
	if err != nil {
		return nil, fmt.Errorf("read queue partition: %w", err)
	}
	ops := make([]ipc.Operation, 0, len(stored))
	for _, op := range stored {
		ops = append(ops, convertStoredOperation(op))
	}
	return ops, nil
}

func clearStoredOperations(ctx context.Context, st *store.Store) (int, error) {
	count, err := st.Count(ctx, queue.OperationsPartition)
	if err != nil {
		return 0, fmt.Errorf("count queue partition: %w", err)
	}
	tx, err := st.Begin(ctx, store.ModeReadWrite, queue.OperationsPartition)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	if err := tx.Clear(queue.OperationsPartition); err != nil {
		tx.Abort()
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return count, nil
}

// retryStoredFailed flips persisted failed operations back to pending so the
// next daemon start rehydrates them as retryable work.
func retryStoredFailed(ctx context.Context, st *store.Store, ids []string) (int, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	stored, err := store.GetAll[queue.Operation](ctx, st, queue.OperationsPartition)
	if err != nil {
		return 0, fmt.Errorf("read queue partition: %w", err)
	}

	tx, err := st.Begin(ctx, store.ModeReadWrite, queue.OperationsPartition)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	requeued := 0
	for _, op := range stored {
		if op.Status != queue.StatusFailed {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[op.ID]; !ok {
				continue
			}
		}
		op.Status = queue.StatusPending
		op.Attempts = 0
		op.Error = ""
		data, marshalErr := json.Marshal(op)
		if marshalErr != nil {
			tx.Abort()
			return 0, fmt.Errorf("encode operation %s: %w", op.ID, marshalErr)
		}
		if putErr := tx.Put(queue.OperationsPartition, op.ID, data); putErr != nil {
			tx.Abort()
			return 0, fmt.Errorf("requeue operation %s: %w", op.ID, putErr)
		}
		requeued++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	return requeued, nil
}
