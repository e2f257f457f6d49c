package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	cases := []struct {
		incoming string
		keep     bool
	}{
		{incoming: "req-incoming-123", keep: true},
		{incoming: "trace:abc.def_1", keep: true},
		{incoming: ""},
		{incoming: "has spaces"},
		{incoming: "line\nbreak"},
		{incoming: strings.Repeat("a", maxRequestIDLength+1)},
	}
	for _, tc := range cases {
		var seen string
		handler := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromRequest(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		if tc.incoming != "" {
			req.Header[RequestIDHeader] = []string{tc.incoming}
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
			t.Fatalf("%q: context id %q, header %q", tc.incoming, seen, rec.Header().Get(RequestIDHeader))
		}
		if (seen == tc.incoming) != tc.keep {
			t.Fatalf("%q: kept=%v, want %v", tc.incoming, seen == tc.incoming, tc.keep)
		}
	}
}

func TestWithRequestIDScopesLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context()).Info("inside")
	}))
	req := httptest.NewRequest(http.MethodGet, "/games", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["request_id"] != "abc-123" {
		t.Fatalf("expected request_id on scoped logger, got %v", line)
	}
}
