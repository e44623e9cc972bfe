package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWriteAuditLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	WriteAuditLog(context.Background(), "ISSUE_SAS", "acct", "cont", ResultSuccess)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["operation"] != "ISSUE_SAS" || entry["account"] != "acct" || entry["container"] != "cont" {
		t.Errorf("unexpected audit entry: %v", entry)
	}
	if entry["result"] != ResultSuccess {
		t.Errorf("want result SUCCESS, got %v", entry["result"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("want timestamp in audit entry")
	}
}
