package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/vcetai/campuschat/internal/bootstrap"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printBot renders an assistant reply to stdout with a colored prefix and a
// dim metadata line when metadata is non-empty.
func printBot(text, meta string) {
	prefix := colorize(colorBlue+colorBold, "assistant>")
	fmt.Printf("%s %s\n", prefix, strings.TrimSpace(text))
	if meta != "" {
		fmt.Println(colorize(colorDim, "  "+meta))
	}
}

var stepLabels = map[bootstrap.Step]string{
	bootstrap.StepServer:      "Connecting to backend",
	bootstrap.StepModel:       "Waiting for knowledge base",
	bootstrap.StepVectorStore: "Preparing vector store",
	bootstrap.StepReady:       "Ready",
}

// renderProgress prints startup sequence events.
func renderProgress(p bootstrap.Progress) {
	label, ok := stepLabels[p.Step]
	if !ok {
		label = string(p.Step)
	}

	switch p.State {
	case bootstrap.StateActive:
		printStep("%s... (%d%%)", label, p.Percent)
	case bootstrap.StateCompleted:
		printSuccess("%s (%d%%)", label, p.Percent)
	case bootstrap.StateError:
		printError("%s failed", label)
	}

	if p.Warning {
		printWarning("Backend is taking longer than usual to initialize; still waiting")
	}
}
