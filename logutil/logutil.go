// logutil.go - slog-Logger fuer die CLI mit TRACE-Level
// Quellangaben erscheinen erst ab Debug, bei Info bleibt die Ausgabe knapp.
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/7blacky7/vae/envconfig"
)

// LevelTrace liegt unter Debug und wird ueber VAE_DEBUG=2 aktiviert
const LevelTrace slog.Level = -8

// NewLogger schreibt Text-Logs nach w. Ab Debug mit Dateiname:Zeile.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if l, ok := attr.Value.Any().(slog.Level); ok && l < slog.LevelDebug {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// FromEnv baut den Logger mit dem Level aus VAE_DEBUG
func FromEnv(w io.Writer) *slog.Logger {
	return NewLogger(w, envconfig.LogLevel())
}

// TraceEnabled prueft, ob der Default-Logger TRACE ausgibt. Aufrufer
// sparen sich damit teure Attribute wie Gradientennormen.
func TraceEnabled(ctx context.Context) bool {
	return slog.Default().Enabled(ctx, LevelTrace)
}

// Trace loggt auf LevelTrace mit der Quelle des Aufrufers
func Trace(msg string, args ...any) {
	trace(context.Background(), 2, msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	trace(ctx, 2, msg, args...)
}

// skip zaehlt ab trace selbst: 2 ist der Aufrufer von Trace/TraceContext
func trace(ctx context.Context, skip int, msg string, args ...any) {
	logger := slog.Default()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip+1, pcs[:])
	record := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
	record.Add(args...)
	_ = logger.Handler().Handle(ctx, record)
}
