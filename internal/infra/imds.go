package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"sas-token-service/internal/domain"
)

const (
	imdsTokenPath  = "/metadata/identity/oauth2/token"
	imdsAPIVersion = "2018-02-01"
)

// IMDSClient はAzure Instance Metadata Serviceからマネージドアイデンティティのトークンを取得する。
type IMDSClient struct {
	httpClient *http.Client
	endpoint   string
}

// NewIMDSClient は新しいIMDSClientを生成する。endpoint はスキームとホストのみを指定する。
func NewIMDSClient(httpClient *http.Client, endpoint string) *IMDSClient {
	return &IMDSClient{
		httpClient: httpClient,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
	}
}

// imdsErrorResponse はIMDSのエラー応答。
type imdsErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Acquire は resource を対象とするアクセストークンを1回だけ要求する。リトライはしない。
func (c *IMDSClient) Acquire(ctx context.Context, resource string) (*domain.ManagedIdentityToken, error) {
	query := url.Values{}
	query.Set("api-version", imdsAPIVersion)
	query.Set("resource", resource)
	reqURL := c.endpoint + imdsTokenPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating IMDS request: %v", domain.ErrClientConstruction, err)
	}
	req.Header.Set("Metadata", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to reach IMDS",
			"operation", "acquire_token",
			"resource", resource,
			"error", err,
		)
		return nil, fmt.Errorf("%w: requesting IMDS token: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading IMDS response: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		svcErr := &domain.ServiceError{StatusCode: resp.StatusCode}
		var errResp imdsErrorResponse
		if json.Unmarshal(body, &errResp) == nil {
			svcErr.Code = errResp.Error
			svcErr.Message = errResp.ErrorDescription
		}
		slog.ErrorContext(ctx, "IMDS returned an error",
			"operation", "acquire_token",
			"resource", resource,
			"status", resp.StatusCode,
			"code", svcErr.Code,
		)
		return nil, fmt.Errorf("%w: IMDS token request: %w", domain.ErrProtocol, svcErr)
	}

	var token domain.ManagedIdentityToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: decoding IMDS token response: %v", domain.ErrEncoding, err)
	}

	slog.DebugContext(ctx, "acquired managed identity token",
		"resource", token.Resource,
		"expires_on", token.ExpiresOn,
	)
	return &token, nil
}
