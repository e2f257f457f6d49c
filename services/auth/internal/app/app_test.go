package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gamelog/pkg/auth"
	"gamelog/pkg/domain"
	"gamelog/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sessions, err := store.NewJWTSessionStore(store.SessionKeys{Signer: key, SignerID: "test"}, time.Hour, store.NewRedisTokenRevoker(client), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	users := store.NewMemoryStore()
	a, err := New(Config{
		Store:         users,
		Sessions:      sessions,
		RefreshTokens: store.NewRedisRefreshTokenStore(client),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, users
}

func signUp(t *testing.T, a *App, email string) Session {
	t.Helper()
	session, err := a.SignUp(context.Background(), SignUpInput{
		Email:           email,
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		Gamertag:        "  Kestrel ",
		MainPlatform:    domain.MainPC,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return session
}

func TestSignUpIssuesSessionAndStoresProfile(t *testing.T) {
	a, users := newTestApp(t)
	session := signUp(t, a, " Player@Example.com ")
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", session)
	}
	stored, ok, err := users.GetUserByEmail("player@example.com")
	if err != nil || !ok {
		t.Fatalf("user not stored: %v", err)
	}
	if stored.Profile.Gamertag != "Kestrel" || stored.Profile.MainPlatform != domain.MainPC {
		t.Fatalf("unexpected profile: %+v", stored.Profile)
	}
	if stored.PasswordHash == "hunter22" || !auth.CheckPassword("hunter22", stored.PasswordHash) {
		t.Fatalf("password not hashed")
	}
}

func TestSignUpValidation(t *testing.T) {
	a, _ := newTestApp(t)
	signUp(t, a, "taken@example.com")

	cases := map[string]struct {
		in   SignUpInput
		want error
	}{
		"mismatch": {
			in:   SignUpInput{Email: "a@example.com", Password: "hunter22", ConfirmPassword: "hunter23", Gamertag: "x", MainPlatform: domain.MainXbox},
			want: auth.ErrPasswordMismatch,
		},
		"short": {
			in:   SignUpInput{Email: "a@example.com", Password: "abc", ConfirmPassword: "abc", Gamertag: "x", MainPlatform: domain.MainXbox},
			want: auth.ErrPasswordTooShort,
		},
		"bad email": {
			in:   SignUpInput{Email: "not-an-email", Password: "hunter22", ConfirmPassword: "hunter22", Gamertag: "x", MainPlatform: domain.MainXbox},
			want: ErrInvalidEmail,
		},
		"duplicate": {
			in:   SignUpInput{Email: "TAKEN@example.com", Password: "hunter22", ConfirmPassword: "hunter22", Gamertag: "x", MainPlatform: domain.MainXbox},
			want: ErrEmailAlreadyExists,
		},
		"missing": {
			in:   SignUpInput{Email: "", Password: ""},
			want: ErrEmailAndPasswordRequired,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.SignUp(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var verr *domain.ValidationError
	_, err := a.SignUp(context.Background(), SignUpInput{Email: "b@example.com", Password: "hunter22", ConfirmPassword: "hunter22", MainPlatform: domain.MainPC})
	if !errors.As(err, &verr) || verr.Field != "gamertag" {
		t.Fatalf("expected gamertag validation error, got %v", err)
	}
	_, err = a.SignUp(context.Background(), SignUpInput{Email: "b@example.com", Password: "hunter22", ConfirmPassword: "hunter22", Gamertag: "x", MainPlatform: "Dreamcast"})
	if !errors.As(err, &verr) || verr.Field != "mainPlatform" {
		t.Fatalf("expected mainPlatform validation error, got %v", err)
	}
}

func TestLoginAndUserFromToken(t *testing.T) {
	a, users := newTestApp(t)
	signUp(t, a, "player@example.com")
	ctx := context.Background()

	if _, err := a.Login(ctx, "player@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := a.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
	session, err := a.Login(ctx, "PLAYER@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	user, ok := a.UserFromToken(ctx, session.AccessToken)
	if !ok || user.Email != "player@example.com" {
		t.Fatalf("token did not resolve user: %+v", user)
	}

	user.Status = domain.StatusDisabled
	if err := users.SaveUser(user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if _, ok := a.UserFromToken(ctx, session.AccessToken); ok {
		t.Fatalf("disabled user must not resolve")
	}
	if _, err := a.Login(ctx, "player@example.com", "hunter22"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestRefreshRotatesAndDetectsReplay(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	first := signUp(t, a, "player@example.com")

	second, err := a.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == "" {
		t.Fatalf("expected rotated tokens")
	}
	_, err = a.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrInvalidRefreshToken) || !errors.Is(err, store.ErrRefreshTokenReplay) {
		t.Fatalf("expected replay error, got %v", err)
	}
	if _, err := a.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay must revoke the family, got %v", err)
	}
	if _, err := a.Refresh(ctx, " "); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Fatalf("expected required error, got %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	session := signUp(t, a, "player@example.com")

	if err := a.Logout(ctx, session.AccessToken, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.UserFromToken(ctx, session.AccessToken); ok {
		t.Fatalf("revoked token still valid")
	}
	if _, err := a.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh token survived logout: %v", err)
	}
}

func TestUpdateProfileKeepsRequiredFields(t *testing.T) {
	a, _ := newTestApp(t)
	session := signUp(t, a, "player@example.com")

	updated, err := a.UpdateProfile(session.User, domain.Profile{FullName: " Ana Souza "})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Profile.FullName != "Ana Souza" || updated.Profile.Gamertag != "Kestrel" || updated.Profile.MainPlatform != domain.MainPC {
		t.Fatalf("unexpected profile: %+v", updated.Profile)
	}
	if _, err := a.UpdateProfile(session.User, domain.Profile{MainPlatform: "Amiga"}); err == nil {
		t.Fatalf("expected invalid platform to fail")
	}
}

func TestJWKSPublishesSigningKey(t *testing.T) {
	a, _ := newTestApp(t)
	keys := a.JWKS()
	if len(keys) != 1 || keys[0].Kid != "test" || keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwks: %+v", keys)
	}
}
