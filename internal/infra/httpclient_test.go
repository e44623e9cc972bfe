package infra

import (
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	client, err := NewHTTPClient(5 * time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("want timeout 5s, got %s", client.Timeout)
	}
	if _, ok := client.Transport.(*userAgentTransport); !ok {
		t.Errorf("want userAgentTransport, got %T", client.Transport)
	}
	if client.Transport == http.DefaultTransport {
		t.Error("want a dedicated transport")
	}
}
