package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"adsplice/internal/daemonctl"
	"adsplice/internal/ipc"
)

const (
	daemonStopWait  = 5 * time.Second
	daemonStartWait = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDaemonStartCommand(ctx),
		newDaemonStopCommand(ctx),
		newDaemonRestartCommand(ctx),
		newDaemonStatusCommand(ctx),
	}
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the adsplice daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), daemonStartWait)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			reportStartOutcome(stdout, result, false)
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the adsplice daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), daemonStopWait)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			case err != nil:
				return err
			}
			reportStopOutcome(stdout, result)
			return nil
		},
	}
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the adsplice daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				daemonStopWait,
				daemonStartWait,
			)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			reportStartOutcome(stdout, result.Start, true)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, statusResp)
			}
			return renderStatusReport(cmd.OutOrStdout(), statusResp)
		},
	}
}

// reportStartOutcome prints the outcome of a start attempt. During a restart
// the already-running state still counts as a successful restart.
func reportStartOutcome(out io.Writer, result daemonctl.StartResult, restarting bool) {
	switch result.State {
	case daemonctl.StartStateStarted:
		if restarting {
			fmt.Fprintln(out, "Daemon restarted")
		} else {
			fmt.Fprintln(out, "Daemon started")
		}
	case daemonctl.StartStateAlreadyRunning:
		if restarting {
			fmt.Fprintln(out, "Daemon restarted")
		} else {
			fmt.Fprintln(out, "Daemon already running")
		}
	case daemonctl.StartStateRequested:
		if message := strings.TrimSpace(result.Message); message != "" {
			fmt.Fprintln(out, message)
			return
		}
		fmt.Fprintln(out, "Start request sent")
	}
}

func reportStopOutcome(out io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(out, "Stopping daemon workflow...")
	} else {
		fmt.Fprintln(out, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(out, "Stopping daemon process (pid %d)...\n", result.PID)
	}
	fmt.Fprintln(out, "Daemon stopped")
}

func renderStatusReport(out io.Writer, resp *ipc.StatusResponse) error {
	printer := newStatusPrinter(out)

	printSection(out, printer, "Daemon", daemonStatusLines(resp, printer))
	printSection(out, printer, "Dependencies", dependencyLines(resp.Dependencies, printer))

	for _, line := range printer.section("Queue Status") {
		fmt.Fprintln(out, line)
	}
	rows := buildQueueStatusRows(resp.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	fmt.Fprint(out, queueStatusTable(rows))
	return nil
}

func printSection(out io.Writer, printer statusPrinter, title string, lines []string) {
	for _, line := range printer.section(title) {
		fmt.Fprintln(out, line)
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}

func daemonStatusLines(resp *ipc.StatusResponse, printer statusPrinter) []string {
	lines := []string{daemonRunningLine(resp, printer)}
	if lastErr := strings.TrimSpace(resp.LastError); lastErr != "" {
		lines = append(lines, printer.line("Last error", statusWarn, lastErr))
	}
	for _, health := range resp.StageHealth {
		lines = append(lines, stageHealthLine(health, printer))
	}
	return lines
}

func daemonRunningLine(resp *ipc.StatusResponse, printer statusPrinter) string {
	if !resp.Running {
		return printer.line("Adsplice", statusError, "Not running")
	}
	detail := "Running"
	if resp.PID > 0 {
		detail = fmt.Sprintf("Running (pid %d)", resp.PID)
	}
	return printer.line("Adsplice", statusOK, detail)
}

func stageHealthLine(health ipc.StageHealth, printer statusPrinter) string {
	detail := strings.TrimSpace(health.Detail)
	switch {
	case health.Ready:
		if detail == "" {
			detail = "Ready"
		}
		return printer.line(health.Name, statusOK, detail)
	case detail == "" || detail == "Ready":
		return printer.line(health.Name, statusWarn, "Not ready")
	default:
		return printer.line(health.Name, statusWarn, detail)
	}
}

func dependencyLines(deps []ipc.DependencyStatus, printer statusPrinter) []string {
	lines := make([]string, 0, len(deps)+1)
	var missing []string
	for _, dep := range deps {
		lines = append(lines, dependencyLine(dep, printer))
		if !dep.Available && !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, printer.line("Missing dependencies", statusWarn, strings.Join(missing, ", ")))
	}
	return lines
}

func dependencyLine(dep ipc.DependencyStatus, printer statusPrinter) string {
	if dep.Available {
		message := "Ready"
		if dep.Command != "" {
			message = fmt.Sprintf("Ready (command: %s)", dep.Command)
		}
		return printer.line(dep.Name, statusOK, message)
	}
	detail := strings.TrimSpace(dep.Detail)
	if detail == "" {
		detail = "not available"
	}
	if dep.Optional {
		return printer.line(dep.Name, statusWarn, detail)
	}
	return printer.line(dep.Name, statusError, detail)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: trimmedFlag(ctx.socketFlag),
		ConfigPath: trimmedFlag(ctx.configFlag),
	}
}

func trimmedFlag(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}
