// Command adspliced runs the adsplice daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"adsplice/internal/config"
	"adsplice/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	socketPath := flag.String("socket", "", "IPC socket path override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   level,
		SocketPath: *socketPath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "adspliced: %v\n", err)
		os.Exit(1)
	}
}
