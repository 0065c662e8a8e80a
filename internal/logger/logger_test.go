package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	t.Parallel()

	l, err := New("", false)
	if err != nil {
		t.Fatalf("New default: %v", err)
	}
	if !l.Core().Enabled(zapcore.InfoLevel) || l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("default level should be info")
	}

	l, err = New("debug", true)
	if err != nil || !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug dev logger: %v", err)
	}

	if _, err := New("loud", false); err == nil {
		t.Fatalf("want error on bad level")
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) must return a logger")
	}
}
