package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewAuditLogger(dir)
	if err != nil {
		t.Fatalf("new audit logger: %v", err)
	}
	logger.Info("ban", zap.Int64("chat_id", -1001), zap.Int64("user_id", 42))
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "audit", "moderation.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"ban"`) || !strings.Contains(line, `"user_id":42`) {
		t.Fatalf("unexpected audit line %q", line)
	}
}

func TestSetupWithoutMetricsAddr(t *testing.T) {
	ctx := context.Background()
	s := NewSetup("")
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	RecordVerdict("caps", "warn_and_delete")
	RecordEnforcement("ban", "ok")
	StartMessageProcessing()("ok")
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
