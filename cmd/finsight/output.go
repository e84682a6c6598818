package main

import (
	"fmt"
	"os"
)

// Status output goes to stderr so piped stdout stays clean for answers and
// JSON payloads.

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
)

func paint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

// printStatus renders an indented "label: value" line with the label in bold.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
