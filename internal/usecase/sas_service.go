// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sas-token-service/internal/domain"
	"sas-token-service/internal/sas"
)

const tracerName = "sas-token-service/internal/usecase"

// TokenSource はマネージドアイデンティティのトークン取得のインターフェース。
type TokenSource interface {
	Acquire(ctx context.Context, resource string) (*domain.ManagedIdentityToken, error)
}

// KeyExchanger はユーザー委任キー取得のインターフェース。
// ResourceURI はトークンの対象リソースで、キーを要求するエンドポイントと一致する。
type KeyExchanger interface {
	ResourceURI(account string) string
	Exchange(ctx context.Context, token *domain.ManagedIdentityToken, account string) (*domain.UserDelegationKey, error)
}

// IssuanceRepository は発行記録のデータアクセスのインターフェース。
type IssuanceRepository interface {
	Create(ctx context.Context, record *domain.IssuanceRecord) error
	FindRecentByAccount(ctx context.Context, account string, limit int) ([]*domain.IssuanceRecord, error)
}

// SASService はユーザー委任SASトークンの発行を提供する。
type SASService struct {
	tokens TokenSource
	keys   KeyExchanger
	repo   IssuanceRepository
	clock  quartz.Clock
}

// NewSASService は新しいSASServiceを生成する。repo が nil の場合は発行記録を残さない。
func NewSASService(tokens TokenSource, keys KeyExchanger, repo IssuanceRepository, clock quartz.Clock) *SASService {
	return &SASService{
		tokens: tokens,
		keys:   keys,
		repo:   repo,
		clock:  clock,
	}
}

// IssueToken はコンテナ読み取り専用のSASトークンを発行する。
// 途中のいずれかの段階で失敗した場合はトークンを返さない。
func (s *SASService) IssueToken(ctx context.Context, account, container string) (_ *domain.IssuedToken, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "SASService.IssueToken")
	span.SetAttributes(
		attribute.String("storage.account", account),
		attribute.String("storage.container", container),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "issue token failed")
		}
		span.End()
	}()

	token, err := s.tokens.Acquire(ctx, s.keys.ResourceURI(account))
	if err != nil {
		return nil, fmt.Errorf("acquiring managed identity token: %w", err)
	}

	key, err := s.keys.Exchange(ctx, token, account)
	if err != nil {
		return nil, fmt.Errorf("getting user delegation key: %w", err)
	}

	signature, err := sas.ComputeSignature(*key, account, container)
	if err != nil {
		return nil, fmt.Errorf("computing signature: %w", err)
	}

	// キャンセル済みならトークンを出さない
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	issued := &domain.IssuedToken{
		ID:           uuid.New().String(),
		Token:        sas.Assemble(*key, signature, account, container),
		Account:      account,
		Container:    container,
		SignedStart:  key.SignedStart,
		SignedExpiry: key.SignedExpiry,
	}

	s.record(ctx, issued, key)
	return issued, nil
}

// record は発行記録を保存する。保存の失敗はログに残すのみで発行結果には影響しない。
func (s *SASService) record(ctx context.Context, issued *domain.IssuedToken, key *domain.UserDelegationKey) {
	if s.repo == nil {
		return
	}

	record := &domain.IssuanceRecord{
		ID:           issued.ID,
		Account:      issued.Account,
		Container:    issued.Container,
		SignedOID:    key.SignedOID,
		SignedTID:    key.SignedTID,
		SignedStart:  key.SignedStart,
		SignedExpiry: key.SignedExpiry,
		IssuedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		slog.WarnContext(ctx, "failed to record issuance",
			"issuance_id", issued.ID,
			"account", issued.Account,
			"container", issued.Container,
			"error", err,
		)
	}
}

// ListIssuances は指定されたアカウントの最近の発行記録を取得する。
func (s *SASService) ListIssuances(ctx context.Context, account string, limit int) ([]*domain.IssuanceRecord, error) {
	if s.repo == nil {
		return nil, domain.ErrAuditStoreDisabled
	}

	records, err := s.repo.FindRecentByAccount(ctx, account, limit)
	if err != nil {
		return nil, fmt.Errorf("finding issuance records: %w", err)
	}
	return records, nil
}
