// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果値。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// WriteAuditLog はSAS発行操作の監査ログを出力する。トークン本体は出力しない。
func WriteAuditLog(ctx context.Context, operation, account, container, result string) {
	slog.InfoContext(ctx, "sas operation completed",
		"operation", operation,
		"account", account,
		"container", container,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
