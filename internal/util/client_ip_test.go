package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "172.16.0.9"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{name: "untrusted peer ignores forwarded headers", remoteAddr: "198.51.100.10:4000", xff: "203.0.113.5", xrip: "203.0.113.6", want: "198.51.100.10"},
		{name: "trusted peer uses x-forwarded-for", remoteAddr: "10.1.2.3:4000", xff: "203.0.113.5", trusted: trusted, want: "203.0.113.5"},
		{name: "rightmost untrusted hop wins", remoteAddr: "172.16.0.9:4000", xff: "192.0.2.1, 203.0.113.5, 10.0.0.10", trusted: trusted, want: "203.0.113.5"},
		{name: "x-real-ip when forwarded list is unusable", remoteAddr: "10.1.2.3:4000", xff: "garbage", xrip: "203.0.113.7", trusted: trusted, want: "203.0.113.7"},
		{name: "fully trusted chain returns leftmost", remoteAddr: "10.1.2.3:4000", xff: "10.0.0.5, 10.0.0.10", trusted: trusted, want: "10.0.0.5"},
		{name: "ipv4 mapped peer is unmapped", remoteAddr: "[::ffff:10.1.2.3]:4000", xff: "203.0.113.9", trusted: trusted, want: "203.0.113.9"},
		{name: "unparsable remote addr passes through", remoteAddr: "pipe", want: "pipe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://gamelog.test", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	tp, err := NewTrustedProxies([]string{"", "  "})
	if err != nil || tp != nil {
		t.Fatalf("expected nil allowlist for blank input, got %v %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected parse error for invalid prefix")
	}
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatalf("expected parse error for invalid address")
	}
}
