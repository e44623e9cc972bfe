package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport はIMDSやストレージへの接続自体が失敗した場合のエラー。
	ErrTransport = errors.New("transport error")

	// ErrProtocol はエンドポイントが成功以外のHTTPステータスを返した場合のエラー。
	ErrProtocol = errors.New("protocol error")

	// ErrEncoding はBase64・JSON・XMLの変換に失敗した場合のエラー。
	ErrEncoding = errors.New("encoding error")

	// ErrClientConstruction はHTTPクライアントの初期化に失敗した場合のエラー。
	ErrClientConstruction = errors.New("client construction error")

	// ErrInvalidAccountName はストレージアカウント名の形式が不正な場合のエラー。
	ErrInvalidAccountName = errors.New("invalid storage account name")

	// ErrInvalidContainerName はコンテナ名の形式が不正な場合のエラー。
	ErrInvalidContainerName = errors.New("invalid container name")

	// ErrAuditStoreDisabled は発行履歴ストアが設定されていない場合のエラー。
	ErrAuditStoreDisabled = errors.New("issuance audit store is not configured")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// ServiceError はIMDSまたはストレージサービスが返したエラー応答を表す。
// Code と Message はレスポンスボディから取り出せた場合のみ設定される。
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("status %d", e.StatusCode)
	}
}
