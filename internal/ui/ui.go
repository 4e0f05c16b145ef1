// Package ui provides the small set of terminal-output helpers the
// supervisor CLI uses for human-facing status lines: colored
// success/warning/info banners and a TTY check gating progress bars. It
// reconstructs the shape of the teacher's own internal/ui package (referenced
// from cmd/cie/start.go as ui.Header/ui.Success/ui.Info/ui.Warning/ui.Infof,
// but not itself present in the retrieved slice — see DESIGN.md) using the
// same color/isatty dependencies the teacher's go.mod pins.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	noColor = false

	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgBlue)
)

// InitColors disables color rendering when disable is true or the process is
// not attached to a terminal.
func InitColors(disable bool) {
	noColor = disable
	color.NoColor = disable || !IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is connected to an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func Header(msg string) {
	if noColor {
		fmt.Println(msg)
		return
	}
	headerColor.Println(msg)
}

func Success(msg string) {
	printPrefixed(successColor, "✓", msg)
}

func Warning(msg string) {
	printPrefixed(warningColor, "!", msg)
}

func Info(msg string) {
	printPrefixed(infoColor, "i", msg)
}

func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}

func printPrefixed(c *color.Color, prefix, msg string) {
	if noColor {
		fmt.Printf("%s %s\n", prefix, msg)
		return
	}
	c.Printf("%s %s\n", prefix, msg)
}
