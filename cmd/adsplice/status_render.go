package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusStyles = [...]struct {
	label string
	color string
}{
	statusInfo:  {label: "INFO", color: "\x1b[34m"},
	statusOK:    {label: "OK", color: "\x1b[32m"},
	statusWarn:  {label: "WARN", color: "\x1b[33m"},
	statusError: {label: "ERROR", color: "\x1b[31m"},
}

// statusPrinter formats the aligned label/state lines shown by
// `adsplice status`. Whether to color is decided once per writer so
// piped output stays plain.
type statusPrinter struct {
	color bool
}

func newStatusPrinter(w io.Writer) statusPrinter {
	return statusPrinter{color: writerIsTerminal(w)}
}

func (p statusPrinter) line(label string, kind statusKind, message string) string {
	style := statusStyles[statusInfo]
	if kind >= 0 && int(kind) < len(statusStyles) {
		style = statusStyles[kind]
	}
	state := "[" + style.label + "]"
	if message != "" {
		state += " " + message
	}
	rendered := fmt.Sprintf("  %-20s %s", label+":", state)
	if p.color {
		return style.color + rendered + ansiReset
	}
	return rendered
}

func (p statusPrinter) section(title string) []string {
	head := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(head))
	if p.color {
		head = statusStyles[statusInfo].color + head + ansiReset
		rule = statusStyles[statusInfo].color + rule + ansiReset
	}
	return []string{head, rule}
}

func writerIsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
