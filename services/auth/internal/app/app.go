package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gamelog/internal/util"
	"gamelog/pkg/auth"
	"gamelog/pkg/domain"
	"gamelog/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL         string
	Redis               *redis.Client
	SessionTTL          time.Duration
	RefreshTTL          time.Duration
	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	Store               store.Store
	Sessions            store.SessionStore
	RefreshTokens       store.RefreshTokenStore
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	refreshTTL    time.Duration
	now           func() time.Time
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init user store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, fmt.Errorf("jwtPrivateKeyPath is required")
		}
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis is required for token revocation")
		}
		keys, err := store.LoadSessionKeys(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTKeyID, cfg.JWTVerifyPublicKeys)
		if err != nil {
			return nil, err
		}
		rsStore, err := store.NewJWTSessionStore(keys, cfg.SessionTTL, store.NewRedisTokenRevoker(cfg.Redis), store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init rs256 jwt session store: %w", err)
		}
		sessionStore = rsStore
	}

	refreshStore := cfg.RefreshTokens
	if refreshStore == nil {
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis is required for refresh tokens")
		}
		refreshStore = store.NewRedisRefreshTokenStore(cfg.Redis)
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		refreshTokens: refreshStore,
		refreshTTL:    cfg.RefreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Session is the token pair handed to a signed-in client.
type Session struct {
	User         domain.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SignUpInput is the registration form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Gamertag        string
	MainPlatform    domain.MainPlatform
	FullName        string
}

// SignUp registers a player and signs them in.
func (a *App) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return Session{}, ErrEmailAndPasswordRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, ErrInvalidEmail
	}
	if err := auth.ValidateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return Session{}, err
	}
	profile := domain.Profile{FullName: in.FullName, Gamertag: in.Gamertag, MainPlatform: in.MainPlatform}
	profile.Normalize()
	if profile.Gamertag == "" {
		return Session{}, domain.Invalid("gamertag", errors.New("required"))
	}
	if profile.MainPlatform == "" {
		return Session{}, domain.Invalid("mainPlatform", errors.New("required"))
	}
	if err := profile.Validate(); err != nil {
		return Session{}, err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return Session{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	now := a.now()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       domain.StatusActive,
		Profile:      profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return Session{}, fmt.Errorf("save user: %w", err)
	}
	return a.issueSession(ctx, user)
}

// Login validates credentials and issues a session.
func (a *App) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return Session{}, ErrUserDisabled
	}
	return a.issueSession(ctx, user)
}

// UserFromToken resolves a user from an access token.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool) {
	uid, err := a.sessions.Validate(ctx, token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found || user.Status == domain.StatusDisabled {
		return domain.User{}, false
	}
	return user, true
}

// Logout revokes the access token and, when given, the refresh token family.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := a.sessions.Revoke(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		return a.refreshTokens.DeleteToken(ctx, refreshToken)
	}
	return nil
}

// Refresh rotates the refresh token and issues a new access token. A replayed
// token revokes its whole family.
func (a *App) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, ErrRefreshTokenRequired
	}
	userID, next, err := a.refreshTokens.RotateToken(ctx, refreshToken, a.refreshTTL)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRefreshToken) || errors.Is(err, store.ErrRefreshTokenReplay) {
			return Session{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
		}
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return Session{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found || user.Status == domain.StatusDisabled {
		_ = a.refreshTokens.DeleteToken(ctx, next)
		return Session{}, ErrInvalidRefreshToken
	}
	issued, err := a.sessions.Issue(user.ID)
	if err != nil {
		_ = a.refreshTokens.DeleteToken(ctx, next)
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return Session{User: user, AccessToken: issued.Token, RefreshToken: next, ExpiresAt: issued.ExpiresAt}, nil
}

// UpdateProfile replaces the profile metadata of user.
func (a *App) UpdateProfile(user domain.User, profile domain.Profile) (domain.User, error) {
	profile.Normalize()
	if err := profile.Validate(); err != nil {
		return domain.User{}, err
	}
	if profile.Gamertag == "" {
		profile.Gamertag = user.Profile.Gamertag
	}
	if profile.MainPlatform == "" {
		profile.MainPlatform = user.Profile.MainPlatform
	}
	user.Profile = profile
	user.UpdatedAt = a.now()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// JWKS returns public signing keys when the session store publishes them.
func (a *App) JWKS() []store.JWK {
	if provider, ok := a.sessions.(store.JWKSProvider); ok {
		return provider.JWKS()
	}
	return nil
}

func (a *App) issueSession(ctx context.Context, user domain.User) (Session, error) {
	issued, err := a.sessions.Issue(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := a.refreshTokens.NewToken(ctx, user.ID, a.refreshTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Session{User: user, AccessToken: issued.Token, RefreshToken: refreshToken, ExpiresAt: issued.ExpiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
