// Package tui renders command output for terminals: styled text, tables and
// a spinner around slow calls. Styling is skipped when stdout is not a TTY.
package tui

import (
	"os"

	"github.com/mattn/go-isatty"
)

var (
	HasTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
)
