package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"adsplice/internal/api"
	"adsplice/internal/config"
	"adsplice/internal/logging"
	"adsplice/internal/notifications"
)

func newCLILogger(level string, cfg *config.Config) (*slog.Logger, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// newProcessCommand runs a single video through every pipeline stage in the
// foreground, without requiring a daemon.
func newProcessCommand(ctx *commandContext) *cobra.Command {
	var title string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "process <path>",
		Short: "Process a source video through all stages without the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := resolveSourceFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newCLILogger(logLevel, cfg)
			if err != nil {
				return err
			}

			result, err := api.ProcessFile(cmd.Context(), api.ProcessRequest{
				Config:     cfg,
				Logger:     logger,
				SourcePath: absPath,
				Title:      strings.TrimSpace(title),
				Notifier:   notifications.NewService(cfg),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.OutcomeMessage)
			if result.Outcome != "completed" {
				return fmt.Errorf("processing ended with status %s", result.Item.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Override the video title used in prompts and notifications")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level for foreground processing")
	return cmd
}
