package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI codes for status lines. Applied only when stderr is a terminal so
// piped output stays clean.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
)

func stderrIsTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// status prints a progress line to stderr. Stdout stays reserved for the
// protocol in serve mode.
func status(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

func statusOK(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if stderrIsTTY() {
		fmt.Fprintf(w, "%s%sok%s %s\n", ansiBold, ansiGreen, ansiReset, msg)
		return
	}
	fmt.Fprintf(w, "ok %s\n", msg)
}

func statusError(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if stderrIsTTY() {
		fmt.Fprintf(w, "%s%serror%s %s\n", ansiBold, ansiRed, ansiReset, msg)
		return
	}
	fmt.Fprintf(w, "error %s\n", msg)
}
