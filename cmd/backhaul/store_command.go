package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"backhaul/internal/ipc"
	"backhaul/internal/store"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the local store",
	}
	storeCmd.AddCommand(newStoreHealthCommand(ctx))
	return storeCmd
}

func newStoreHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show store database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueSource(func(client *ipc.Client, st *store.Store) error {
				var health ipc.StoreHealthResponse
				if client != nil {
					resp, err := client.StoreHealth()
					if err != nil {
						return err
					}
					health = *resp
				} else {
					checked, err := st.CheckHealth(cmd.Context())
					if err != nil && checked.Error == "" {
						return err
					}
					health = ipc.StoreHealthResponse{
						Path:             checked.DBPath,
						DatabaseExists:   checked.DatabaseExists,
						DatabaseReadable: checked.DatabaseReadable,
						SchemaVersion:    checked.SchemaVersion,
						Partitions:       checked.Partitions,
						TotalRecords:     checked.TotalRecords,
						IntegrityCheck:   checked.IntegrityCheck,
						Error:            checked.Error,
					}
				}

				if asJSON {
					return writeJSON(cmd, health)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Store Health", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.Path, colorize))
				fmt.Fprintln(out, renderStatusLine("Exists", boolKind(health.DatabaseExists), yesNo(health.DatabaseExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", boolKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", statusInfo, fmt.Sprintf("version %d", health.SchemaVersion), colorize))
				fmt.Fprintln(out, renderStatusLine("Partitions", statusInfo, strings.Join(health.Partitions, ", "), colorize))
				fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d", health.TotalRecords), colorize))
				if health.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func boolKind(value bool) statusKind {
	if value {
		return statusOK
	}
	return statusError
}
