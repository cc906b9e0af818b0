package logutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func useLogger(t *testing.T, l *slog.Logger) {
	t.Helper()
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	slog.SetDefault(l)
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	useLogger(t, NewLogger(&buf, LevelTrace))

	Trace("forward pass", "layer", "encoder.conv0")
	TraceContext(context.Background(), "backward pass")

	out := buf.String()
	if strings.Count(out, "level=TRACE") != 2 {
		t.Errorf("zwei TRACE-Zeilen erwartet: %q", out)
	}
	if strings.Count(out, "source=logutil_test.go:") != 2 {
		t.Errorf("Quelle sollte der Aufrufer sein: %q", out)
	}

	buf.Reset()
	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	Trace("hidden")
	if buf.Len() != 0 {
		t.Errorf("Trace bei Info-Level geloggt: %q", buf.String())
	}
	if TraceEnabled(context.Background()) {
		t.Error("TraceEnabled bei Info-Level")
	}
}

func TestSourceOnlyWhenDebugging(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("step", "step", 1)
	if strings.Contains(buf.String(), "source=") {
		t.Errorf("Info-Logger sollte keine Quelle schreiben: %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, slog.LevelDebug).Info("step", "step", 1)
	if !strings.Contains(buf.String(), "source=logutil_test.go:") {
		t.Errorf("Debug-Logger ohne Quelle: %q", buf.String())
	}
}

func TestFromEnv(t *testing.T) {
	cases := []struct {
		value string
		trace bool
		debug bool
	}{
		{"", false, false},
		{"1", false, true},
		{"2", true, true},
	}

	for _, tt := range cases {
		t.Run("VAE_DEBUG="+tt.value, func(t *testing.T) {
			t.Setenv("VAE_DEBUG", tt.value)
			var buf bytes.Buffer
			useLogger(t, FromEnv(&buf))

			if got := TraceEnabled(context.Background()); got != tt.trace {
				t.Errorf("TraceEnabled = %v, erwartet %v", got, tt.trace)
			}
			if got := slog.Default().Enabled(context.Background(), slog.LevelDebug); got != tt.debug {
				t.Errorf("Debug aktiv = %v, erwartet %v", got, tt.debug)
			}
		})
	}
}
