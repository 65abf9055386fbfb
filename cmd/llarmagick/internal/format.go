package internal

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
)

func printSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	headerColor.Fprintf(w, "▸ %s\n", title)
}

func printSuccess(w io.Writer, msg string) {
	successColor.Fprintf(w, "✓ %s\n", msg)
}

func printWarning(w io.Writer, msg string) {
	warningColor.Fprintf(w, "⚠ %s\n", msg)
}

func printError(msg string) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

func printLabelValue(w io.Writer, label string, value any) {
	labelColor.Fprintf(w, "  %s: ", label)
	valueColor.Fprintln(w, value)
}

func printList(w io.Writer, label string, values []string) {
	labelColor.Fprintf(w, "  %s:\n", label)
	for _, v := range values {
		valueColor.Fprintf(w, "    %s\n", v)
	}
}
