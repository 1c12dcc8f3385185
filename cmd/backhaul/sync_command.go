package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"backhaul/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Trigger an immediate reconciliation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sync()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing sync response")
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Message != "":
					fmt.Fprintln(out, resp.Message)
				case resp.Synced:
					fmt.Fprintln(out, "Sync completed")
				default:
					fmt.Fprintln(out, "Sync did not complete")
				}
				if !resp.Synced {
					return errors.New("sync finished with failed operations")
				}
				return nil
			})
		},
	}
}
