// Package main はSASトークン発行APIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sas-token-service/config"
	"sas-token-service/internal/handler"
	"sas-token-service/internal/infra"
	"sas-token-service/internal/repository"
	"sas-token-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, os.Stdout)

	httpClient, err := infra.NewHTTPClient(cfg.HTTPTimeout)
	if err != nil {
		slog.Error("failed to init HTTP client", "error", err)
		os.Exit(1)
	}

	// 発行記録はDATABASE_URLがある場合のみ
	var repo usecase.IssuanceRepository
	if cfg.DatabaseURL != "" {
		db, err := infra.NewDB(cfg.DatabaseURL, cfg.OtelEnabled)
		if err != nil {
			slog.Error("failed to init database", "error", err)
			os.Exit(1)
		}
		repo = repository.NewIssuanceRepository(db)
	} else {
		slog.Info("DATABASE_URL is not set, issuance history disabled")
	}

	// DI
	clock := quartz.NewReal()
	service := usecase.NewSASService(
		infra.NewIMDSClient(httpClient, cfg.IMDSEndpoint),
		infra.NewDelegationKeyClient(httpClient, clock, cfg.BlobEndpointFormat),
		repo,
		clock,
	)
	h := handler.NewSASHandler(service)
	router := handler.NewRouter(h)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "sas-token-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
