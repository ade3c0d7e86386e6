package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"none", SILENT, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerModuleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf, false)

	l.Debug("Bus", "hidden %d", 1)
	l.Info("Bus", "published slot %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at INFO level: %q", out)
	}
	if !strings.Contains(out, "published slot 1") {
		t.Errorf("info message missing: %q", out)
	}
	if !strings.Contains(out, "module=Bus") {
		t.Errorf("module field missing: %q", out)
	}
}

func TestLoggerSilent(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)

	l.Error("Bus", "should not appear")
	if buf.Len() != 0 {
		t.Errorf("SILENT logger wrote %q", buf.String())
	}

	l.SetLevel(WARN)
	if l.GetLevel() != WARN {
		t.Fatalf("GetLevel() = %v, want WARN", l.GetLevel())
	}
	l.Warn("", "now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("warn message missing after SetLevel: %q", buf.String())
	}
}

func TestLoggerLevelMethods(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger, module, format string, args ...interface{})
		want string
	}{
		{"debug", (*Logger).Debug, "level=debug"},
		{"info", (*Logger).Info, "level=info"},
		{"warn", (*Logger).Warn, "level=warning"},
		{"error", (*Logger).Error, "level=error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(DEBUG, &buf, false)

			tt.log(l, "Reader", "slot %d", 3)
			out := buf.String()
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "slot 3") {
				t.Errorf("output %q, want %s with the message", out, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DEBUG, "DEBUG"},
		{WARN, "WARN"},
		{SILENT, "SILENT"},
		{LogLevel(-1), "UNKNOWN"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", int(tt.level), got, tt.want)
		}
	}
}
