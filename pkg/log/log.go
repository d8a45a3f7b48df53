// Package log includes step-oriented logging helpers used throughout the
// build and run pipeline: each pipeline step announces itself with Info,
// then reports Done, Skipped or Failed.
package log

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// NoColor disables ANSI colorization of step results.
var NoColor = false

var (
	infoColor    = color.New(color.FgCyan)
	doneColor    = color.New(color.FgGreen)
	skippedColor = color.New(color.FgYellow)
	failedColor  = color.New(color.FgRed, color.Bold)
	extraColor   = color.New(color.FgWhite)
)

func colorize(c *color.Color, format string, args ...interface{}) string {
	if NoColor {
		return fmt.Sprintf(format, args...)
	}
	return c.Sprintf(format, args...)
}

// Info announces the start of a step. It does not print a trailing
// newline so that Done/Skipped/Failed can complete the line.
func Info(name string) {
	fmt.Fprint(os.Stderr, colorize(infoColor, "%-30s", name))
}

// ExtraInfo prints an indented sub-item of the current step (e.g. a file
// name being archived).
func ExtraInfo(name string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(extraColor, "  ->"), name)
}

// Drop ends the current step's line without a verdict, so that
// sub-process output (apt-get, dpkg-buildpackage, ...) can be interleaved
// with the build log.
func Drop() {
	fmt.Fprintln(os.Stderr)
}

// Done marks the current step as having completed successfully.
func Done() error {
	fmt.Fprintln(os.Stderr, colorize(doneColor, "[done]"))
	return nil
}

// Skipped marks the current step as a no-op (cache hit, already-built,
// etc).
func Skipped() error {
	fmt.Fprintln(os.Stderr, colorize(skippedColor, "[skipped]"))
	return nil
}

// Failed marks the current step as failed and returns err unchanged, so
// callers can `return log.Failed(err)`.
func Failed(err error) error {
	fmt.Fprintln(os.Stderr, colorize(failedColor, "[failed]"))
	return err
}

// Error prints a standalone error not tied to a step (used at the top
// level, in cmd/vagga).
func Error(err error) {
	fmt.Fprintln(os.Stderr, colorize(failedColor, "error: %v", err))
}

// Warn prints a non-fatal warning, e.g. an EnsureDir path shadowed by a
// volume mount.
func Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(skippedColor, "warning:"), fmt.Sprintf(format, args...))
}
