// Package main はSASトークン発行CLIのエントリポイント。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sas-token-service/config"
	"sas-token-service/internal/infra"
	"sas-token-service/internal/repository"
	"sas-token-service/internal/usecase"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	cfg := config.Load()

	// 標準出力はトークン専用
	infra.SetupLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init tracer: %v\n", err)
		return 1
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd はトークン発行を行うルートコマンドを生成する。
func newRootCmd(cfg *config.Config) *cobra.Command {
	var account, container string

	rootCmd := &cobra.Command{
		Use:           "sastoken",
		Short:         "Issue a read-only container SAS token using the VM managed identity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := newSASService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			issued, err := service.IssueToken(cmd.Context(), account, container)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			return nil
		},
	}
	rootCmd.Flags().StringVar(&account, "storage-account-name", "", "Storage account name (required)")
	rootCmd.Flags().StringVar(&container, "container-name", "", "Container name (required)")
	rootCmd.MarkFlagRequired("storage-account-name")
	rootCmd.MarkFlagRequired("container-name")

	rootCmd.AddCommand(newMigrateCmd(cfg))
	rootCmd.AddCommand(newHistoryCmd(cfg))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sastoken version %s\n", version)
		},
	}
}

// newSASService は設定からSASServiceを組み立てる。
// DATABASE_URL が設定されている場合のみ発行記録を保存する。
func newSASService(cfg *config.Config) (*usecase.SASService, func(), error) {
	httpClient, err := infra.NewHTTPClient(cfg.HTTPTimeout)
	if err != nil {
		return nil, nil, err
	}

	clock := quartz.NewReal()
	cleanup := func() {}

	var repo usecase.IssuanceRepository
	if cfg.DatabaseURL != "" {
		db, err := infra.NewDB(cfg.DatabaseURL, cfg.OtelEnabled)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup = func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		repo = repository.NewIssuanceRepository(db)
	}

	service := usecase.NewSASService(
		infra.NewIMDSClient(httpClient, cfg.IMDSEndpoint),
		infra.NewDelegationKeyClient(httpClient, clock, cfg.BlobEndpointFormat),
		repo,
		clock,
	)
	return service, cleanup, nil
}
