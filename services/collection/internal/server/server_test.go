package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"gamelog/internal/ratelimit"
	"gamelog/pkg/domain"
	"gamelog/pkg/storage"
	"gamelog/pkg/store"
	"gamelog/services/collection/internal/app"
)

type fakeAuth map[string]domain.User

func (f fakeAuth) Me(_ context.Context, token string) (domain.User, error) {
	u, ok := f[token]
	if !ok {
		return domain.User{}, errors.New("unauthorized")
	}
	return u, nil
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifySubject(_ context.Context, token string) (string, error) {
	sub, ok := f[token]
	if !ok {
		return "", errors.New("bad token")
	}
	return sub, nil
}

var users = fakeAuth{
	"tok-ana":      {ID: "u-ana", Email: "ana@example.com", Status: domain.StatusActive},
	"tok-bruno":    {ID: "u-bruno", Email: "bruno@example.com", Status: domain.StatusActive},
	"tok-disabled": {ID: "u-off", Email: "off@example.com", Status: domain.StatusDisabled},
}

func newTestServer(t *testing.T, limiter *ratelimit.FixedWindowLimiter) http.Handler {
	t.Helper()
	core, err := app.New(app.Config{Store: store.NewMemoryStore(), Objects: storage.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: core, Auth: users, RewriteLimiter: limiter})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func celeste() map[string]any {
	return map[string]any{"title": "Celeste", "platform": "Switch", "completionDate": "2023-11-02", "rating": 9, "hoursPlayed": 15}
}

func TestGameCRUD(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/games", "tok-ana", celeste())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[domain.Game](t, rec)
	if created.ID == "" || created.OwnerID != "u-ana" {
		t.Fatalf("unexpected created game %+v", created)
	}

	edit := celeste()
	edit["rating"] = 10
	edit["isPlatinum"] = true
	rec = do(t, h, http.MethodPut, "/games/"+created.ID, "tok-ana", edit)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Game](t, rec); got.Rating != 10 || !got.IsPlatinum {
		t.Fatalf("update not applied: %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/games?ownerId=u-ana", "tok-ana", nil)
	list := decode[struct {
		Items []domain.Game `json:"items"`
		Count int           `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = do(t, h, http.MethodDelete, "/games/"+created.ID, "tok-ana", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/games/"+created.ID, "tok-ana", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestOwnerScoping(t *testing.T) {
	h := newTestServer(t, nil)
	created := decode[domain.Game](t, do(t, h, http.MethodPost, "/games", "tok-ana", celeste()))

	if rec := do(t, h, http.MethodGet, "/games?ownerId=u-ana", "tok-bruno", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign ownerId, got %d", rec.Code)
	}
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := do(t, h, method, "/games/"+created.ID, "tok-bruno", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s foreign game: expected 404, got %d", method, rec.Code)
		}
		if body := decode[errorResponse](t, rec); body.Code != "GAME_NOT_FOUND" {
			t.Fatalf("unexpected error code %q", body.Code)
		}
	}
}

func TestAuthentication(t *testing.T) {
	h := newTestServer(t, nil)
	cases := []struct {
		token string
		want  int
	}{
		{token: "", want: http.StatusUnauthorized},
		{token: "tok-unknown", want: http.StatusUnauthorized},
		{token: "tok-disabled", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		if rec := do(t, h, http.MethodGet, "/games", tc.token, nil); rec.Code != tc.want {
			t.Fatalf("token %q: expected %d, got %d", tc.token, tc.want, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", rec.Code)
	}
}

func TestVerifierSubjectMustMatchUser(t *testing.T) {
	core, _ := app.New(app.Config{Store: store.NewMemoryStore()})
	srv, _ := New(Config{App: core, Auth: users, TokenVerifier: fakeVerifier{"tok-ana": "u-bruno"}})
	if rec := do(t, srv.Router(), http.MethodGet, "/games", "tok-ana", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on subject mismatch, got %d", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestServer(t, nil)
	bad := celeste()
	bad["platform"] = "Dreamcast"
	rec := do(t, h, http.MethodPost, "/games", "tok-ana", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[errorResponse](t, rec)
	if body.Code != "GAME_VALIDATION_FAILED" || !strings.Contains(body.Error, "platform") {
		t.Fatalf("unexpected error body %+v", body)
	}
	if body.RequestID == "" {
		t.Fatalf("expected request id in error body")
	}

	req := httptest.NewRequest(http.MethodPost, "/games", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer tok-ana")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}
}

func TestSummaryAndExport(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/games", "tok-ana", celeste())
	do(t, h, http.MethodPost, "/games", "tok-ana", map[string]any{"title": "Elden Ring", "platform": "PS5", "completionDate": "2024-02-20", "rating": 10, "hoursPlayed": 120, "isPlatinum": true})

	summary := decode[map[string]float64](t, do(t, h, http.MethodGet, "/games/summary", "tok-ana", nil))
	if summary["total"] != 2 || summary["hours"] != 135 || summary["avgRating"] != 9.5 || summary["platinums"] != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}

	rec := do(t, h, http.MethodGet, "/games/export?q=eld&platform=PS5&sort=rating-desc", "tok-ana", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected export response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("export body is not a pdf")
	}

	link := decode[app.ExportLink](t, do(t, h, http.MethodGet, "/games/export?archive=1", "tok-ana", nil))
	if link.URL == "" || !strings.HasSuffix(link.Filename, ".pdf") {
		t.Fatalf("unexpected archive link %+v", link)
	}
}

func TestRewriteIsRateLimitedPerUser(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "test:rewrite", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	h := newTestServer(t, limiter)
	body := map[string]any{"title": "Celeste", "rating": 9, "review": "hard but fair"}

	rec := do(t, h, http.MethodPost, "/games/rewrite", "tok-ana", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("rewrite status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]string](t, rec); got["review"] != "hard but fair" {
		t.Fatalf("expected draft without generator, got %q", got["review"])
	}

	rec = do(t, h, http.MethodPost, "/games/rewrite", "tok-ana", body)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/games/rewrite", "tok-bruno", body); rec.Code != http.StatusOK {
		t.Fatalf("other users keep their quota, got %d", rec.Code)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	h := newTestServer(t, nil)
	if rec := do(t, h, http.MethodGet, "/games/a/b", "tok-ana", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for nested path, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/games", "tok-ana", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/games/rewrite", "tok-ana", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET rewrite, got %d", rec.Code)
	}
}
