package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Ctrl-C during `show --follow` and friends is a clean exit path;
		// only real errors get printed.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "adsplice:", err)
		}
		os.Exit(1)
	}
}
