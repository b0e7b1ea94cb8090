package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewReleaseWritesJSONToConfiguredFile(t *testing.T) {
	tmpDir := t.TempDir()
	l := New("release", Options{Dir: tmpDir, Filename: "gateflow.log"})
	l.Sugar().Infow("payment_request_start", "tracking_number", 1234)
	_ = l.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "gateflow.log"))
	if err != nil {
		t.Fatalf("read release log failed: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, `"message":"payment_request_start"`) {
		t.Fatalf("expected json message field, got=%s", text)
	}
	if !strings.Contains(text, `"tracking_number":1234`) {
		t.Fatalf("expected tracking_number field, got=%s", text)
	}
}

func TestNewDebugDoesNotWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	l := New("DEBUG", Options{Dir: tmpDir, Filename: "debug.log"})
	l.Info("debug-log-test")
	_ = l.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestResolveLogFilePathDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	got, err := resolveLogFilePath(Options{Dir: filepath.Join(tmpDir, "nested")})
	if err != nil {
		t.Fatalf("resolve log path failed: %v", err)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("log file should be created: %v", err)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithRequestID(context.Background(), "req-9")
	FromContext(ctx, base).Infow("payment_verify_start")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries want 1 got %d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "req-9" {
		t.Fatalf("request_id want req-9 got %v", entries[0].ContextMap()["request_id"])
	}

	if got := RequestID(WithRequestID(context.Background(), "  ")); got != "" {
		t.Fatalf("blank request id should be ignored, got %q", got)
	}
}

func TestPositiveOr(t *testing.T) {
	if positiveOr(0, 7) != 7 {
		t.Fatalf("zero should fallback")
	}
	if positiveOr(3, 7) != 3 {
		t.Fatalf("positive value should be kept")
	}
}
