package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"adsplice/internal/ipc"
)

const followWaitMillis = 1000

func newShowCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return streamDaemonLogs(cmd.Context(), cmd.OutOrStdout(), client, follow, lines)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}

// streamDaemonLogs prints the trailing window of the daemon log and, in
// follow mode, keeps polling from the returned offset until ctx is done.
func streamDaemonLogs(ctx context.Context, out io.Writer, client *ipc.Client, follow bool, lines int) error {
	limit := max(lines, 0)
	// limit 0 means the whole file, so start from the beginning instead of
	// the tail window.
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: followWaitMillis,
		})
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(out, line)
			printed = true
		}

		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		offset = resp.Offset
		limit = 0
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
