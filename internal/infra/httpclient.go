package infra

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sas-token-service/internal/domain"
)

// userAgent は送信するすべてのリクエストに付与するUser-Agent。
const userAgent = "AzTokenRetriever"

// userAgentTransport はUser-Agentヘッダを付与するRoundTripper。
type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.next.RoundTrip(req)
}

// NewHTTPClient はトレース計装付きのHTTPクライアントを生成する。
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected default transport %T", domain.ErrClientConstruction, http.DefaultTransport)
	}

	transport := base.Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: otelhttp.NewTransport(transport)},
	}, nil
}
