// Package collectionclient calls the collection service over HTTP. Client
// satisfies library.Remote.
package collectionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamelog/pkg/domain"
	"gamelog/pkg/library"
)

// TokenSource hands out a valid access token, refreshing it if needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// APIError represents a collection service error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the collection service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type listResponse struct {
	Items []domain.Game `json:"items"`
	Count int           `json:"count"`
}

// ListGames returns every game of ownerID, newest completion first.
func (c *Client) ListGames(ctx context.Context, ownerID string) ([]domain.Game, error) {
	path := "/games"
	if ownerID != "" {
		path += "?" + url.Values{"ownerId": {ownerID}}.Encode()
	}
	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []domain.Game{}
	}
	return resp.Items, nil
}

func (c *Client) GetGame(ctx context.Context, id string) (domain.Game, error) {
	var g domain.Game
	err := c.doJSON(ctx, http.MethodGet, "/games/"+url.PathEscape(id), nil, &g)
	return g, err
}

func (c *Client) CreateGame(ctx context.Context, g domain.Game) (domain.Game, error) {
	var created domain.Game
	err := c.doJSON(ctx, http.MethodPost, "/games", g, &created)
	return created, err
}

func (c *Client) UpdateGame(ctx context.Context, g domain.Game) (domain.Game, error) {
	if strings.TrimSpace(g.ID) == "" {
		return domain.Game{}, errors.New("update game: id required")
	}
	var updated domain.Game
	err := c.doJSON(ctx, http.MethodPut, "/games/"+url.PathEscape(g.ID), g, &updated)
	return updated, err
}

func (c *Client) DeleteGame(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/games/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Summary(ctx context.Context) (library.Summary, error) {
	var s library.Summary
	err := c.doJSON(ctx, http.MethodGet, "/games/summary", nil, &s)
	return s, err
}

// ExportLink is returned by an archived export.
type ExportLink struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Export streams the server-rendered PDF of the filtered view into w.
func (c *Client) Export(ctx context.Context, q library.Query, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/games/export?"+exportParams(q).Encode(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download export: %w", err)
	}
	return nil
}

// ArchiveExport asks the server to store the PDF and returns a download link.
func (c *Client) ArchiveExport(ctx context.Context, q library.Query) (ExportLink, error) {
	params := exportParams(q)
	params.Set("archive", "1")
	var link ExportLink
	err := c.doJSON(ctx, http.MethodGet, "/games/export?"+params.Encode(), nil, &link)
	return link, err
}

// RewriteReview asks the server to polish draft. Any failure yields the draft.
func (c *Client) RewriteReview(ctx context.Context, title string, rating int, draft string) string {
	payload := map[string]any{"title": title, "rating": rating, "review": draft}
	var resp struct {
		Review string `json:"review"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/games/rewrite", payload, &resp); err != nil {
		c.logger.Warn("review rewrite request failed", "err", err)
		return draft
	}
	if strings.TrimSpace(resp.Review) == "" {
		return draft
	}
	return resp.Review
}

func exportParams(q library.Query) url.Values {
	params := url.Values{}
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	if q.Platform != library.PlatformAll {
		params.Set("platform", string(q.Platform))
	}
	if q.Sort != "" {
		params.Set("sort", string(q.Sort))
	}
	return params
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends the request and turns error statuses into *APIError. The caller
// closes the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return nil, &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: msg}
}
