package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamelog/internal/ratelimit"
	"gamelog/internal/util"
	"gamelog/pkg/domain"
	"gamelog/pkg/export"
	"gamelog/pkg/library"
	"gamelog/services/collection/internal/app"
)

// AuthClient resolves the caller behind an access token.
type AuthClient interface {
	Me(ctx context.Context, token string) (domain.User, error)
}

// TokenVerifier checks access tokens locally before the auth round trip.
type TokenVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Auth          AuthClient
	TokenVerifier TokenVerifier
	// RewriteLimiter caps /games/rewrite per user. Nil disables the limit.
	RewriteLimiter *ratelimit.FixedWindowLimiter
	CORSOrigins    []string
}

// Server exposes HTTP endpoints for the collection service.
type Server struct {
	app            *app.App
	auth           AuthClient
	tokenVerifier  TokenVerifier
	rewriteLimiter *ratelimit.FixedWindowLimiter
	corsOrigins    []string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("collection server requires app")
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.Auth,
		tokenVerifier:  cfg.TokenVerifier,
		rewriteLimiter: cfg.RewriteLimiter,
		corsOrigins:    cfg.CORSOrigins,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("collection", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// games
	s.mux.Handle("/games", s.withUser(s.handleGames))
	s.mux.Handle("/games/", s.withUser(s.handleGamePath))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusInternalServerError, "auth client not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var subject string
		if s.tokenVerifier != nil {
			sub, err := s.tokenVerifier.VerifySubject(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			subject = sub
		}
		user, err := s.auth.Me(r.Context(), token)
		if err != nil || (subject != "" && user.ID != subject) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Status == domain.StatusDisabled {
			writeError(w, http.StatusForbidden, "account disabled")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		s.handleListGames(w, r, user)
	case http.MethodPost:
		s.handleCreateGame(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

// /games/{id}, /games/summary, /games/export, /games/rewrite
func (s *Server) handleGamePath(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/games/")
	if rest == "" || strings.Contains(rest, "/") {
		notFound(w, "not found")
		return
	}
	switch rest {
	case "summary":
		s.handleSummary(w, r, user)
	case "export":
		s.handleExport(w, r, user)
	case "rewrite":
		s.handleRewrite(w, r, user)
	default:
		s.handleGameByID(w, r, user, rest)
	}
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request, user domain.User) {
	if owner := strings.TrimSpace(r.URL.Query().Get("ownerId")); owner != "" && owner != user.ID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	games, err := s.app.ListGames(user)
	if err != nil {
		s.internalError(w, r, "list games failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": games,
		"count": len(games),
	})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req domain.Game
	if !decodeJSON(w, r, &req) {
		return
	}
	game, err := s.app.CreateGame(user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("game created", "game_id", game.ID, "owner_id", user.ID)
	writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleGameByID(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		game, err := s.app.GetGame(user, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, game)
	case http.MethodPut:
		var req domain.Game
		if !decodeJSON(w, r, &req) {
			return
		}
		game, err := s.app.UpdateGame(user, id, req)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, game)
	case http.MethodDelete:
		if err := s.app.DeleteGame(user, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.Summary(user)
	if err != nil {
		s.internalError(w, r, "summary failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	params := r.URL.Query()
	q := library.Query{
		Text:     params.Get("q"),
		Platform: library.ParsePlatformFilter(params.Get("platform")),
		Sort:     library.ParseSortKey(params.Get("sort")),
	}
	if archive, _ := strconv.ParseBool(params.Get("archive")); archive {
		link, err := s.app.ArchiveExport(r.Context(), user, q)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
		return
	}
	// Render fully before writing so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := s.app.ExportPDF(user, q, &buf); err != nil {
		s.internalError(w, r, "export failed", err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type rewriteRequest struct {
	Title  string `json:"title"`
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req rewriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	if s.rewriteLimiter != nil {
		if d := s.rewriteLimiter.Check(r.Context(), "rewrite:"+user.ID); !d.Allowed {
			if secs := int(d.RetryAfter.Seconds()); secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
	}
	review := s.app.RewriteReview(r.Context(), req.Title, req.Rating, req.Review)
	writeJSON(w, http.StatusOK, map[string]string{"review": review})
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, app.ErrGameNotFound):
		notFound(w, "game not found")
	case errors.Is(err, app.ErrArchiveDisabled):
		writeError(w, http.StatusServiceUnavailable, "export archive not configured")
	default:
		s.internalError(w, r, "request failed", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForGame(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCodeForGame(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "auth client not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "account disabled":
		return "AUTH_USER_DISABLED"
	case message == "forbidden":
		return "GAME_FORBIDDEN"
	case message == "game not found":
		return "GAME_NOT_FOUND"
	case message == "invalid json body", message == "title required":
		return "GAME_INVALID_REQUEST"
	case strings.HasPrefix(message, "invalid "):
		return "GAME_VALIDATION_FAILED"
	case message == "too many requests":
		return "GAME_REWRITE_RATE_LIMITED"
	case message == "export archive not configured":
		return "GAME_EXPORT_ARCHIVE_DISABLED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "GAME_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "GAME_FORBIDDEN"
	case http.StatusNotFound:
		return "GAME_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
