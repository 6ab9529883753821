package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func clientIPRequest(remoteAddr, xff, realIP string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	if realIP != "" {
		req.Header.Set("X-Real-IP", realIP)
	}
	return req
}

func TestClientIPIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	req := clientIPRequest("198.51.100.10:9999", "203.0.113.5", "203.0.113.6")
	if got := ClientIP(req, nil); got != "198.51.100.10" {
		t.Fatalf("got %q, want peer address", got)
	}
}

func TestClientIPWalksForwardedChain(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	// single forwarded hop behind a trusted proxy
	req := clientIPRequest("10.0.0.20:9999", "203.0.113.5", "")
	if got := ClientIP(req, trusted); got != "203.0.113.5" {
		t.Fatalf("got %q, want forwarded client", got)
	}

	// rightmost untrusted hop wins
	req = clientIPRequest("10.0.0.20:9999", "203.0.113.5, 10.0.0.10", "")
	if got := ClientIP(req, trusted); got != "203.0.113.5" {
		t.Fatalf("got %q, want first untrusted hop", got)
	}

	// fully trusted chain falls back to the leftmost entry
	req = clientIPRequest("10.0.0.20:9999", "10.0.0.5, 10.0.0.10", "")
	if got := ClientIP(req, trusted); got != "10.0.0.5" {
		t.Fatalf("got %q, want leftmost hop", got)
	}
}

func TestClientIPRealIPFallback(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}
	req := clientIPRequest("10.0.0.20:9999", "garbage", "203.0.113.7")
	if got := ClientIP(req, trusted); got != "203.0.113.7" {
		t.Fatalf("got %q, want X-Real-IP value", got)
	}
}

func TestNewTrustedProxiesParsing(t *testing.T) {
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty input: tp=%v err=%v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"}); err != nil {
		t.Fatalf("valid entries rejected: %v", err)
	}
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}
