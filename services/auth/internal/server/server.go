package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamelog/internal/ratelimit"
	"gamelog/internal/util"
	"gamelog/pkg/auth"
	"gamelog/pkg/domain"
	"gamelog/pkg/store"
	"gamelog/services/auth/internal/app"
	"gamelog/services/auth/internal/security"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	SignupLimiter  *ratelimit.FixedWindowLimiter
	LoginLimiter   *ratelimit.FixedWindowLimiter
	RefreshLimiter *ratelimit.FixedWindowLimiter
	Alerter        *security.AuditAlerter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
}

// Server exposes HTTP endpoints for the auth service.
type Server struct {
	app            *app.App
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	refreshLimiter *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("auth server requires app")
	}
	s := &Server{
		app:            cfg.App,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		refreshLimiter: cfg.RefreshLimiter,
		alerter:        cfg.Alerter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("auth", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	s.mux.HandleFunc("/auth/jwks", s.handleJWKS)
	s.mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(r.Context(), token)
		if !ok {
			s.securityEvent(r, "auth.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.signupLimiter, "auth.signup") {
		return
	}
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.SignUp(r.Context(), app.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Gamertag:        req.Gamertag,
		MainPlatform:    req.MainPlatform,
		FullName:        req.FullName,
	})
	if err != nil {
		s.securityEvent(r, "auth.signup", "fail")
		s.writeAppError(w, r, err)
		return
	}
	s.securityEvent(r, "auth.signup", "success")
	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.loginLimiter, "auth.login") {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.securityEvent(r, "auth.login", "fail")
		s.writeAppError(w, r, err)
		return
	}
	s.securityEvent(r, "auth.login", "success")
	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.refreshLimiter, "auth.refresh") {
		return
	}
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		outcome := "fail"
		if errors.Is(err, store.ErrRefreshTokenReplay) {
			outcome = "replay"
		}
		s.securityEvent(r, "auth.refresh", outcome)
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		s.securityEvent(r, "auth.logout", "fail")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.securityEvent(r, "auth.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req domain.Profile
		if !decodeJSON(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateProfile(user, req)
		if err != nil {
			s.securityEvent(r, "auth.profile.update", "fail")
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	keys := s.app.JWKS()
	if len(keys) == 0 {
		writeError(w, http.StatusNotFound, "jwks not available")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// allow applies a per-IP limiter and writes 429 when the window is spent.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, event string) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Check(r.Context(), event+":"+util.ClientIP(r, s.trustedProxies))
	if decision.Allowed {
		return true
	}
	if secs := int(decision.RetryAfter.Round(time.Second) / time.Second); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.securityEvent(r, event, "rate_limited")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func (s *Server) securityEvent(r *http.Request, event, outcome string) {
	ip := util.ClientIP(r, s.trustedProxies)
	logger := util.LoggerFromContext(r.Context())
	level := slog.LevelInfo
	if outcome != "success" {
		level = slog.LevelWarn
	}
	logger.Log(r.Context(), level, "security_event", "event", event, "outcome", outcome, "ip", ip)

	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(context.WithoutCancel(r.Context()), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert", "event", event, "outcome", outcome, "ip", ip,
			"count", result.Count, "threshold", result.Threshold, "window", result.Window.String())
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrInvalidEmail),
		errors.Is(err, app.ErrRefreshTokenRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidRefreshToken.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type signupRequest struct {
	Email           string              `json:"email"`
	Password        string              `json:"password"`
	ConfirmPassword string              `json:"confirmPassword"`
	Gamertag        string              `json:"gamertag"`
	MainPlatform    domain.MainPlatform `json:"mainPlatform"`
	FullName        string              `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         domain.User `json:"user"`
}

func sessionResponse(s app.Session) authResponse {
	return authResponse{Token: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: s.ExpiresAt, User: s.User}
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
		Code:      errorCodeForAuth(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCodeForAuth(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == strings.ToLower(app.ErrInvalidCredentials.Error()):
		return "AUTH_INVALID_CREDENTIALS"
	case message == app.ErrInvalidRefreshToken.Error(), message == app.ErrRefreshTokenRequired.Error():
		return "AUTH_INVALID_REFRESH_TOKEN"
	case message == app.ErrEmailAlreadyExists.Error():
		return "AUTH_EMAIL_ALREADY_EXISTS"
	case message == app.ErrInvalidEmail.Error():
		return "AUTH_INVALID_EMAIL"
	case message == app.ErrEmailAndPasswordRequired.Error():
		return "AUTH_EMAIL_PASSWORD_REQUIRED"
	case message == auth.ErrPasswordMismatch.Error():
		return "AUTH_PASSWORD_MISMATCH"
	case strings.HasPrefix(message, "password must be"):
		return "AUTH_PASSWORD_POLICY_VIOLATION"
	case strings.HasPrefix(message, "invalid "):
		return "AUTH_PROFILE_INVALID"
	case message == "jwks not available":
		return "AUTH_JWKS_UNAVAILABLE"
	case message == "too many requests":
		return "AUTH_RATE_LIMITED"
	case message == "invalid json body":
		return "AUTH_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}

	switch status {
	case http.StatusBadRequest:
		return "AUTH_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusConflict:
		return "AUTH_CONFLICT"
	case http.StatusTooManyRequests:
		return "AUTH_RATE_LIMITED"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
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
