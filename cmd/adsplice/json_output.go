package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON renders v as two-space-indented JSON on the command's stdout,
// used by commands honoring the global --json flag.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
