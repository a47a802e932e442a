package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"adsplice/internal/ipc"
	"adsplice/internal/queue"
)

var sourceFileExtensions = map[string]struct{}{
	".mp4": {},
	".mov": {},
	".mkv": {},
}

// resolveSourceFile validates a CLI path argument and returns its absolute
// form. Shared by add and process so both reject the same inputs.
func resolveSourceFile(arg string) (string, error) {
	absPath, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("file does not exist: %s", absPath)
	case err != nil:
		return "", fmt.Errorf("inspect file: %w", err)
	case info.IsDir():
		return "", fmt.Errorf("%s is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := sourceFileExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return absPath, nil
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Add a source video to the processing queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := resolveSourceFile(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				itemID, err := enqueueSource(cmd, client, store, absPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued video as item #%d (%s)\n", itemID, filepath.Base(absPath))
				return nil
			})
		},
	}
}

// enqueueSource prefers the daemon so a running workflow picks the item up
// immediately, and falls back to writing the queue database directly.
func enqueueSource(cmd *cobra.Command, client *ipc.Client, store *queue.Store, absPath string) (int64, error) {
	if client != nil {
		resp, err := client.AddVideo(absPath)
		if err != nil {
			return 0, err
		}
		if resp == nil {
			return 0, errors.New("empty response from daemon")
		}
		return resp.Item.ID, nil
	}
	item, err := store.NewVideo(cmd.Context(), absPath, "")
	if err != nil {
		return 0, err
	}
	return item.ID, nil
}
