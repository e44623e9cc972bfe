package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(h *SASHandler) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/v1/accounts/{account}", func(r chi.Router) {
		r.Get("/containers/{container}/sas", h.IssueToken)
		r.Get("/issuances", h.ListIssuances)
	})

	return r
}
