package sessionx

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Severity of a user notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notifier displays a transient message to the user. Delivery is fire and
// forget.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, severity Severity, message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, severity Severity, message string) {
	f(ctx, severity, message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Severity, string) {}

// TerminalNotifier prints notifications to a terminal, coloured by severity.
// Info and success go to out, warnings and errors to errOut.
type TerminalNotifier struct {
	out       io.Writer
	errOut    io.Writer
	useColors bool
}

// NewTerminalNotifier returns a notifier writing to stdout and stderr.
func NewTerminalNotifier(useColors bool) *TerminalNotifier {
	return NewTerminalNotifierWriters(os.Stdout, os.Stderr, useColors)
}

// NewTerminalNotifierWriters returns a notifier writing to the given writers.
func NewTerminalNotifierWriters(out, errOut io.Writer, useColors bool) *TerminalNotifier {
	return &TerminalNotifier{out: out, errOut: errOut, useColors: useColors}
}

// Notify implements Notifier.
func (n *TerminalNotifier) Notify(_ context.Context, severity Severity, message string) {
	var (
		w      = n.out
		prefix string
		attr   color.Attribute
	)
	switch severity {
	case SeveritySuccess:
		prefix, attr = "[OK] ", color.FgGreen
	case SeverityWarning:
		w, prefix, attr = n.errOut, "[WARN] ", color.FgYellow
	case SeverityError:
		w, prefix, attr = n.errOut, "[ERROR] ", color.FgRed
	default:
		prefix, attr = "", color.FgCyan
	}
	if n.useColors {
		c := color.New(attr)
		c.EnableColor()
		c.Fprintln(w, prefix+message)
		return
	}
	fmt.Fprintln(w, prefix+message)
}
