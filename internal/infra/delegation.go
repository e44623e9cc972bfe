package infra

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/quartz"

	"sas-token-service/internal/domain"
)

const (
	// StorageServiceVersion は x-ms-version ヘッダに送るAPIバージョン。
	StorageServiceVersion = "2022-11-02"

	userDelegationKeyQuery = "/?restype=service&comp=userdelegationkey"
)

// utf8BOM はストレージサービスの応答先頭に付くことがあるBOM。
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// keyInfo はユーザー委任キー要求のリクエストボディ。
type keyInfo struct {
	XMLName xml.Name `xml:"KeyInfo"`
	Start   string   `xml:"Start"`
	Expiry  string   `xml:"Expiry"`
}

// userDelegationKeyResponse はユーザー委任キー応答のXML表現。
type userDelegationKeyResponse struct {
	XMLName xml.Name `xml:"UserDelegationKey"`
	domain.UserDelegationKey
}

// storageErrorResponse はストレージサービスのエラー応答。
type storageErrorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// DelegationKeyClient はベアラートークンをユーザー委任キーと交換する。
type DelegationKeyClient struct {
	httpClient     *http.Client
	clock          quartz.Clock
	endpointFormat string
}

// NewDelegationKeyClient は新しいDelegationKeyClientを生成する。
// endpointFormat は %s にストレージアカウント名が入る書式（通常は config.DefaultBlobEndpointFormat）。
func NewDelegationKeyClient(httpClient *http.Client, clock quartz.Clock, endpointFormat string) *DelegationKeyClient {
	return &DelegationKeyClient{
		httpClient:     httpClient,
		clock:          clock,
		endpointFormat: endpointFormat,
	}
}

// ResourceURI はアカウントのBlobエンドポイント、つまりIMDSに要求するトークンの対象リソースを返す。
func (c *DelegationKeyClient) ResourceURI(account string) string {
	return fmt.Sprintf(c.endpointFormat, account)
}

// Exchange は現在時刻から2時間有効なユーザー委任キーを要求する。
func (c *DelegationKeyClient) Exchange(ctx context.Context, token *domain.ManagedIdentityToken, account string) (*domain.UserDelegationKey, error) {
	window := domain.NewKeyRequestWindow(c.clock.Now())
	body, err := xml.Marshal(keyInfo{
		Start:  domain.FormatKeyTime(window.Start),
		Expiry: domain.FormatKeyTime(window.Expiry),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding key request: %v", domain.ErrEncoding, err)
	}

	reqURL := c.ResourceURI(account) + userDelegationKeyQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating delegation key request: %v", domain.ErrClientConstruction, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("x-ms-version", StorageServiceVersion)
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to reach storage service",
			"operation", "exchange_delegation_key",
			"account", account,
			"error", err,
		)
		return nil, fmt.Errorf("%w: requesting user delegation key: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading delegation key response: %w", domain.ErrTransport, err)
	}
	respBody = bytes.TrimPrefix(respBody, utf8BOM)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		svcErr := parseStorageError(resp, respBody)
		slog.ErrorContext(ctx, "storage service returned an error",
			"operation", "exchange_delegation_key",
			"account", account,
			"status", resp.StatusCode,
			"code", svcErr.Code,
		)
		return nil, fmt.Errorf("%w: user delegation key request: %w", domain.ErrProtocol, svcErr)
	}

	var parsed userDelegationKeyResponse
	if err := xml.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding user delegation key: %v", domain.ErrEncoding, err)
	}
	if parsed.Value == "" {
		return nil, fmt.Errorf("%w: user delegation key response has no Value", domain.ErrEncoding)
	}

	key := parsed.UserDelegationKey
	slog.DebugContext(ctx, "obtained user delegation key",
		"account", account,
		"signed_start", key.SignedStart,
		"signed_expiry", key.SignedExpiry,
	)
	return &key, nil
}

// parseStorageError はエラー応答からサービス固有のエラーコードとメッセージを取り出す。
func parseStorageError(resp *http.Response, body []byte) *domain.ServiceError {
	svcErr := &domain.ServiceError{
		StatusCode: resp.StatusCode,
		Code:       resp.Header.Get("x-ms-error-code"),
	}

	var errResp storageErrorResponse
	if xml.Unmarshal(body, &errResp) == nil {
		if errResp.Code != "" {
			svcErr.Code = errResp.Code
		}
		svcErr.Message = errResp.Message
	}
	return svcErr
}
