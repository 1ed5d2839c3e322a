// Package logging configures the run logger: human-readable lines on stderr
// in the form "<ISO timestamp> [tag] message", optionally mirrored into a
// rotating file. Phases log through the short bracketed tags ([extract],
// [created], [blocked], [preserved], ...) so operators can grep a run by
// event kind.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls sink and level selection.
type Options struct {
	Verbose bool   // debug level
	Quiet   bool   // warn level
	File    string // mirror into this rotating file when non-empty

	// Out overrides the console sink; nil means os.Stderr. Tests capture
	// output through it.
	Out io.Writer
}

// Logger writes tagged migration log lines.
type Logger struct {
	zl   zerolog.Logger
	file *lumberjack.Logger
}

// New builds a logger from opts.
func New(opts Options) *Logger {
	out := opts.Out
	noColor := true
	if out == nil {
		out = os.Stderr
		noColor = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	}

	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "2006-01-02T15:04:05Z",
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
	}

	l := &Logger{}
	var sink io.Writer = console
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    16, // megabytes
			MaxBackups: 8,
		}
		fileConsole := console
		fileConsole.Out = l.file
		fileConsole.NoColor = true
		sink = zerolog.MultiLevelWriter(console, fileConsole)
	}

	level := zerolog.InfoLevel
	switch {
	case opts.Quiet:
		level = zerolog.WarnLevel
	case opts.Verbose:
		level = zerolog.DebugLevel
	}

	l.zl = zerolog.New(sink).Level(level).With().Timestamp().Logger()
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Close flushes the rotating file sink, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Tag logs an info-level line under the given bracketed tag.
func (l *Logger) Tag(tag, format string, args ...any) {
	l.zl.Info().Msgf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// Debug logs a debug-level line under the given tag.
func (l *Logger) Debug(tag, format string, args ...any) {
	l.zl.Debug().Msgf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msgf("[warn] %s", fmt.Sprintf(format, args...))
}

// Error logs a per-item error. Fatal errors do not come through here; they
// propagate up to main and exit the process.
func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msgf("[error] %s", fmt.Sprintf(format, args...))
}

func init() {
	// Staging timestamps are UTC; log lines match so an operator can
	// correlate a log line with a row's updated_at without converting.
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Summary logs a phase summary as one line per non-empty bucket.
func (l *Logger) Summary(phase string, buckets []Bucket) {
	var parts []string
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", b.Name, b.Count))
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	l.Tag(phase, "summary: %s", strings.Join(parts, " "))
}

// Bucket is one phase summary counter.
type Bucket struct {
	Name  string
	Count int
}
