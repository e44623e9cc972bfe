// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sas-token-service/internal/domain"
	"sas-token-service/internal/middleware"
	"sas-token-service/internal/usecase"
	"sas-token-service/pkg/httputil"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

var (
	accountNameRegex   = regexp.MustCompile(`^[a-z0-9]{3,24}$`)
	containerNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61})[a-z0-9]$`)
)

// SASHandler はSASトークン発行のHTTPハンドラを提供する。
type SASHandler struct {
	service *usecase.SASService
}

// NewSASHandler は新しいSASHandlerを生成する。
func NewSASHandler(service *usecase.SASService) *SASHandler {
	return &SASHandler{service: service}
}

// ValidateAccountName はストレージアカウント名の命名規則を検証する。
func ValidateAccountName(account string) error {
	if !accountNameRegex.MatchString(account) {
		return domain.ErrInvalidAccountName
	}
	return nil
}

// ValidateContainerName はコンテナ名の命名規則を検証する。ハイフンの連続は許可しない。
func ValidateContainerName(container string) error {
	if !containerNameRegex.MatchString(container) {
		return domain.ErrInvalidContainerName
	}
	for i := 1; i < len(container); i++ {
		if container[i] == '-' && container[i-1] == '-' {
			return domain.ErrInvalidContainerName
		}
	}
	return nil
}

// SASTokenResponse はSASトークンのレスポンス形式。
type SASTokenResponse struct {
	ID           string `json:"id"`
	Token        string `json:"token"`
	Account      string `json:"account"`
	Container    string `json:"container"`
	SignedStart  string `json:"signed_start"`
	SignedExpiry string `json:"signed_expiry"`
}

// IssuanceResponse は発行記録のレスポンス形式。
type IssuanceResponse struct {
	ID           string `json:"id"`
	Container    string `json:"container"`
	SignedOID    string `json:"signed_oid"`
	SignedStart  string `json:"signed_start"`
	SignedExpiry string `json:"signed_expiry"`
	IssuedAt     string `json:"issued_at"`
}

// IssuanceListResponse は発行記録一覧のレスポンス形式。
type IssuanceListResponse struct {
	Account   string             `json:"account"`
	Issuances []IssuanceResponse `json:"issuances"`
}

// IssueToken はコンテナ読み取り専用のSASトークンを発行する。
func (h *SASHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	container := chi.URLParam(r, "container")
	if err := ValidateAccountName(account); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ACCOUNT_NAME", "invalid storage account name")
		return
	}
	if err := ValidateContainerName(container); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTAINER_NAME", "invalid container name")
		return
	}

	issued, err := h.service.IssueToken(r.Context(), account, container)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ISSUE_SAS", account, container, middleware.ResultFailed)
		writeIssueError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ISSUE_SAS", account, container, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, SASTokenResponse{
		ID:           issued.ID,
		Token:        issued.Token.String(),
		Account:      issued.Account,
		Container:    issued.Container,
		SignedStart:  issued.SignedStart,
		SignedExpiry: issued.SignedExpiry,
	})
}

// writeIssueError は発行失敗をステータスコードに変換する。
func writeIssueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProtocol):
		var svcErr *domain.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code != "" {
			httputil.Error(w, http.StatusBadGateway, "UPSTREAM_REJECTED", svcErr.Code)
			return
		}
		httputil.Error(w, http.StatusBadGateway, "UPSTREAM_REJECTED", "upstream service rejected the request")
	case errors.Is(err, domain.ErrTransport):
		httputil.Error(w, http.StatusBadGateway, "UPSTREAM_UNREACHABLE", "upstream service is unreachable")
	case errors.Is(err, domain.ErrEncoding):
		httputil.Error(w, http.StatusBadGateway, "UPSTREAM_MALFORMED", "upstream response could not be decoded")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ListIssuances はアカウントの最近の発行記録を取得する。
func (h *SASHandler) ListIssuances(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if err := ValidateAccountName(account); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ACCOUNT_NAME", "invalid storage account name")
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistoryLimit {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	records, err := h.service.ListIssuances(r.Context(), account, limit)
	if err != nil {
		if errors.Is(err, domain.ErrAuditStoreDisabled) {
			httputil.Error(w, http.StatusNotImplemented, "AUDIT_STORE_DISABLED", "issuance history is not enabled")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := IssuanceListResponse{
		Account:   account,
		Issuances: make([]IssuanceResponse, len(records)),
	}
	for i, rec := range records {
		response.Issuances[i] = IssuanceResponse{
			ID:           rec.ID,
			Container:    rec.Container,
			SignedOID:    rec.SignedOID,
			SignedStart:  rec.SignedStart,
			SignedExpiry: rec.SignedExpiry,
			IssuedAt:     rec.IssuedAt.Format(time.RFC3339),
		}
	}
	httputil.JSON(w, http.StatusOK, response)
}

// Healthz は死活監視用のエンドポイント。
func (h *SASHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
