// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Output formats for the stderr handler.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls Setup.
type Options struct {
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
	// Format is auto, text or json. Auto picks text on a terminal and
	// JSON otherwise.
	Format string
	// File, when set, receives a JSON copy of every record at debug level.
	File  string
	Level slog.Level
}

// IsTTY reports whether the given file descriptor refers to a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// Setup builds a logger from opts. The returned closer releases the log
// file, if any, and is never nil.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && IsTTY(f.Fd()) {
			format = FormatText
		}
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler
	switch format {
	case FormatText:
		h = slog.NewTextHandler(w, hopts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	closer := func() error { return nil }
	if opts.File != "" {
		lf, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		fileH := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		h = NewMultiHandler(h, fileH)
		closer = lf.Close
	}
	return slog.New(h), closer, nil
}
