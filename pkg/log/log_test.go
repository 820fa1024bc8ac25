package log

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, name string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	return ForService(name), buf
}

func TestPrefixAndLevels(t *testing.T) {
	SetGlobalDebug(false)

	const name = "prefix_service_test"
	l, buf := newTestLogger(t, name)

	tests := []struct {
		level string
		emit  func(string, ...any)
	}{
		{LevelInfo, l.Infof},
		{LevelWarn, l.Warnf},
		{LevelError, l.Errorf},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.emit("hello %s", "world")
			out := buf.String()
			if !strings.Contains(out, tt.level+" ["+name+">] hello world") {
				t.Fatalf("expected %q line, got: %q", tt.level, out)
			}
		})
	}
}

func TestDebugPerService(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_service_specific"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("debug message appeared while debug disabled")
	}

	EnableDebugFor(name)
	defer DisableDebugFor(name)
	l.Debugf("visible now")
	if !strings.Contains(buf.String(), "visible now") {
		t.Fatalf("expected debug message after enabling per-service debug; got: %q", buf.String())
	}
}

func TestDebugGlobal(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_service_global"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug message appeared while global debug disabled")
	}

	SetGlobalDebug(true)
	defer SetGlobalDebug(false)

	l.Debugf("global visible")
	if !strings.Contains(buf.String(), "global visible") {
		t.Fatalf("expected debug message after enabling global debug; got: %q", buf.String())
	}
}

func TestConfigureDebug(t *testing.T) {
	SetGlobalDebug(false)
	defer SetGlobalDebug(false)

	ConfigureDebug("query, index")
	defer DisableDebugFor("query")
	defer DisableDebugFor("index")

	if !DebugEnabledFor("query") || !DebugEnabledFor("index") {
		t.Fatalf("expected query and index debug to be enabled")
	}
	if DebugEnabledFor("storage") {
		t.Fatalf("storage debug should stay disabled")
	}

	ConfigureDebug("all")
	if !GlobalDebug() {
		t.Fatalf("expected global debug after ConfigureDebug(all)")
	}
}
