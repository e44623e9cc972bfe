package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"

	"sas-token-service/internal/domain"
	"sas-token-service/internal/usecase"
)

// mockTokenSource はテスト用のモックトークンソース。
type mockTokenSource struct {
	err    error
	called bool
}

func (m *mockTokenSource) Acquire(ctx context.Context, resource string) (*domain.ManagedIdentityToken, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ManagedIdentityToken{AccessToken: "T1", Resource: resource}, nil
}

// mockKeyExchanger はテスト用のモック委任キー取得。
type mockKeyExchanger struct {
	err error
}

func (m *mockKeyExchanger) ResourceURI(account string) string {
	return "https://" + account + ".blob.core.windows.net"
}

func (m *mockKeyExchanger) Exchange(ctx context.Context, token *domain.ManagedIdentityToken, account string) (*domain.UserDelegationKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.UserDelegationKey{
		SignedOID:     "11111111-2222-3333-4444-555555555555",
		SignedTID:     "66666666-7777-8888-9999-000000000000",
		SignedStart:   "2024-01-01T00:00:00Z",
		SignedExpiry:  "2024-01-01T02:00:00Z",
		SignedService: "b",
		SignedVersion: "2022-11-02",
		Value:         "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=",
	}, nil
}

// mockIssuanceRepository はテスト用のモックリポジトリ。
type mockIssuanceRepository struct {
	findResult []*domain.IssuanceRecord
	findErr    error
	gotLimit   int
}

func (m *mockIssuanceRepository) Create(ctx context.Context, record *domain.IssuanceRecord) error {
	return nil
}

func (m *mockIssuanceRepository) FindRecentByAccount(ctx context.Context, account string, limit int) ([]*domain.IssuanceRecord, error) {
	m.gotLimit = limit
	return m.findResult, m.findErr
}

func setupHandler(t *testing.T, tokens *mockTokenSource, keys *mockKeyExchanger, repo usecase.IssuanceRepository) *SASHandler {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewSASHandler(usecase.NewSASService(tokens, keys, repo, clock))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newIssueRequest(account, container string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/accounts/%s/containers/%s/sas", account, container), nil)
	return withURLParams(req, map[string]string{"account": account, "container": container})
}

func TestIssueToken_Success(t *testing.T) {
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, nil)

	rec := httptest.NewRecorder()
	h.IssueToken(rec, newIssueRequest("acct", "cont"))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp SASTokenResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if !strings.HasPrefix(resp.Token, "sp=r&st=2024-01-01T00:00:00Z&se=2024-01-01T02:00:00Z") {
		t.Errorf("unexpected token: %s", resp.Token)
	}
	if !strings.HasSuffix(resp.Token, "&sig=pgySNRgBgywZbK9xenBZdv8e2SejenKJRNV5VGxvlRA%3D") {
		t.Errorf("unexpected signature in token: %s", resp.Token)
	}
	if resp.Account != "acct" || resp.Container != "cont" || resp.ID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.SignedExpiry != "2024-01-01T02:00:00Z" {
		t.Errorf("want signed_expiry 2024-01-01T02:00:00Z, got %s", resp.SignedExpiry)
	}
}

func TestIssueToken_InvalidNames(t *testing.T) {
	tests := []struct {
		name      string
		account   string
		container string
		wantCode  string
	}{
		{"uppercase account", "Acct", "cont", "INVALID_ACCOUNT_NAME"},
		{"short account", "ab", "cont", "INVALID_ACCOUNT_NAME"},
		{"long account", strings.Repeat("a", 25), "cont", "INVALID_ACCOUNT_NAME"},
		{"account with hyphen", "my-acct", "cont", "INVALID_ACCOUNT_NAME"},
		{"short container", "acct", "ab", "INVALID_CONTAINER_NAME"},
		{"container leading hyphen", "acct", "-cont", "INVALID_CONTAINER_NAME"},
		{"container trailing hyphen", "acct", "cont-", "INVALID_CONTAINER_NAME"},
		{"container double hyphen", "acct", "co--nt", "INVALID_CONTAINER_NAME"},
		{"container uppercase", "acct", "Cont", "INVALID_CONTAINER_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &mockTokenSource{}
			h := setupHandler(t, tokens, &mockKeyExchanger{}, nil)

			rec := httptest.NewRecorder()
			h.IssueToken(rec, newIssueRequest(tt.account, tt.container))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("want status 400, got %d", rec.Code)
			}
			var resp map[string]string
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp["code"] != tt.wantCode {
				t.Errorf("want code %s, got %s", tt.wantCode, resp["code"])
			}
			if tokens.called {
				t.Error("want no upstream call for invalid names")
			}
		})
	}
}

func TestIssueToken_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		tokenErr   error
		keyErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "IMDS unreachable",
			tokenErr:   fmt.Errorf("%w: dial tcp", domain.ErrTransport),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_UNREACHABLE",
		},
		{
			name:       "storage rejected",
			keyErr:     fmt.Errorf("%w: %w", domain.ErrProtocol, &domain.ServiceError{StatusCode: 403, Code: "AuthorizationPermissionMismatch"}),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_REJECTED",
		},
		{
			name:       "malformed key response",
			keyErr:     fmt.Errorf("%w: bad xml", domain.ErrEncoding),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_MALFORMED",
		},
		{
			name:       "unexpected",
			tokenErr:   errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupHandler(t, &mockTokenSource{err: tt.tokenErr}, &mockKeyExchanger{err: tt.keyErr}, nil)

			rec := httptest.NewRecorder()
			h.IssueToken(rec, newIssueRequest("acct", "cont"))

			if rec.Code != tt.wantStatus {
				t.Errorf("want status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp map[string]string
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp["code"] != tt.wantCode {
				t.Errorf("want code %s, got %s", tt.wantCode, resp["code"])
			}
			if strings.Contains(rec.Body.String(), "sig=") {
				t.Error("want no token in error response")
			}
		})
	}
}

func TestIssueToken_ServiceCodeSurfaced(t *testing.T) {
	keyErr := fmt.Errorf("%w: %w", domain.ErrProtocol, &domain.ServiceError{StatusCode: 403, Code: "AuthorizationPermissionMismatch"})
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{err: keyErr}, nil)

	rec := httptest.NewRecorder()
	h.IssueToken(rec, newIssueRequest("acct", "cont"))

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["message"] != "AuthorizationPermissionMismatch" {
		t.Errorf("want service code in message, got %s", resp["message"])
	}
}

func TestListIssuances_Success(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockIssuanceRepository{findResult: []*domain.IssuanceRecord{
		{ID: "id-1", Account: "acct", Container: "cont", SignedOID: "oid", IssuedAt: issuedAt},
	}}
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct/issuances?limit=5", nil)
	req = withURLParams(req, map[string]string{"account": "acct"})
	rec := httptest.NewRecorder()
	h.ListIssuances(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if repo.gotLimit != 5 {
		t.Errorf("want limit 5, got %d", repo.gotLimit)
	}

	var resp IssuanceListResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Issuances) != 1 || resp.Issuances[0].ID != "id-1" {
		t.Fatalf("unexpected issuances: %+v", resp.Issuances)
	}
	if resp.Issuances[0].IssuedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected issued_at: %s", resp.Issuances[0].IssuedAt)
	}
}

func TestListIssuances_DefaultLimit(t *testing.T) {
	repo := &mockIssuanceRepository{}
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct/issuances", nil)
	req = withURLParams(req, map[string]string{"account": "acct"})
	rec := httptest.NewRecorder()
	h.ListIssuances(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
	if repo.gotLimit != defaultHistoryLimit {
		t.Errorf("want default limit %d, got %d", defaultHistoryLimit, repo.gotLimit)
	}
}

func TestListIssuances_InvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "-1", "abc", "101"} {
		t.Run(limit, func(t *testing.T) {
			h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, &mockIssuanceRepository{})

			req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct/issuances?limit="+limit, nil)
			req = withURLParams(req, map[string]string{"account": "acct"})
			rec := httptest.NewRecorder()
			h.ListIssuances(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("want status 400, got %d", rec.Code)
			}
		})
	}
}

func TestListIssuances_Disabled(t *testing.T) {
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct/issuances", nil)
	req = withURLParams(req, map[string]string{"account": "acct"})
	rec := httptest.NewRecorder()
	h.ListIssuances(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("want status 501, got %d", rec.Code)
	}
}

func TestListIssuances_RepositoryError(t *testing.T) {
	repo := &mockIssuanceRepository{findErr: errors.New("db down")}
	h := setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct/issuances", nil)
	req = withURLParams(req, map[string]string{"account": "acct"})
	rec := httptest.NewRecorder()
	h.ListIssuances(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("want status 500, got %d", rec.Code)
	}
}

func TestRouter(t *testing.T) {
	router := NewRouter(setupHandler(t, &mockTokenSource{}, &mockKeyExchanger{}, nil))

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/v1/accounts/acct/containers/cont/sas", http.StatusOK},
		{"/v1/accounts/acct/issuances", http.StatusNotImplemented},
		{"/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("want status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
