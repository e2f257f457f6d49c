// Package identity manages the signed-in session on the client side and
// publishes sign-in and sign-out changes to subscribers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gamelog/pkg/auth"
	"gamelog/pkg/authclient"
	"gamelog/pkg/domain"
)

var ErrNotSignedIn = errors.New("not signed in")

// ErrPasswordMismatch is returned by SignUp before any remote call when the
// confirmation differs from the password.
var ErrPasswordMismatch = auth.ErrPasswordMismatch

type EventKind string

const (
	SignedIn       EventKind = "signed_in"
	SignedOut      EventKind = "signed_out"
	TokenRefreshed EventKind = "token_refreshed"
	ProfileUpdated EventKind = "profile_updated"
)

// Event is one change of authentication state.
type Event struct {
	Kind EventKind
	User domain.User
}

const (
	subscriberBuffer = 16
	refreshSkew      = 30 * time.Second
)

// Provider wraps the auth client with a persisted session.
type Provider struct {
	client  *authclient.Client
	persist Persister
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	session *Session

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewProvider(client *authclient.Client, persist Persister) *Provider {
	if persist == nil {
		persist = &MemorySessionStore{}
	}
	return &Provider{
		client:  client,
		persist: persist,
		logger:  slog.Default(),
		now:     time.Now,
		subs:    make(map[int]chan Event),
	}
}

// Subscribe returns a stream of auth events and a function that ends the
// subscription and closes the channel. Slow subscribers miss events.
func (p *Provider) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

func (p *Provider) publish(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("auth event dropped", "subscriber", id, "event", ev.Kind)
		}
	}
}

// SignUpInput is what a new player fills in.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Gamertag        string
	MainPlatform    domain.MainPlatform
	FullName        string
}

func (in SignUpInput) validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return &domain.ValidationError{Field: "email", Message: "invalid email address", Err: err}
	}
	if err := auth.ValidateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		field := "password"
		if errors.Is(err, auth.ErrPasswordMismatch) {
			field = "confirmPassword"
		}
		return domain.Invalid(field, err)
	}
	if strings.TrimSpace(in.Gamertag) == "" {
		return &domain.ValidationError{Field: "gamertag", Message: "required"}
	}
	if !in.MainPlatform.Valid() {
		return &domain.ValidationError{Field: "mainPlatform", Message: fmt.Sprintf("unknown platform %q", in.MainPlatform)}
	}
	return nil
}

// SignUp registers and signs in. Input errors are reported without
// contacting the identity service.
func (p *Provider) SignUp(ctx context.Context, in SignUpInput) (domain.User, error) {
	if err := in.validate(); err != nil {
		return domain.User{}, err
	}
	resp, err := p.client.SignUp(ctx, authclient.SignUpRequest{
		Email:           strings.TrimSpace(in.Email),
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		Gamertag:        strings.TrimSpace(in.Gamertag),
		MainPlatform:    in.MainPlatform,
		FullName:        strings.TrimSpace(in.FullName),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("sign up: %w", err)
	}
	return p.establish(resp, SignedIn)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, &domain.ValidationError{Field: "credentials", Message: "email and password required"}
	}
	resp, err := p.client.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, fmt.Errorf("sign in: %w", err)
	}
	return p.establish(resp, SignedIn)
}

func (p *Provider) establish(resp authclient.AuthResponse, kind EventKind) (domain.User, error) {
	sess := Session{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		User:         resp.User,
	}
	p.mu.Lock()
	p.session = &sess
	err := p.persist.Save(sess)
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("session not persisted", "err", err)
	}
	p.publish(Event{Kind: kind, User: resp.User})
	return resp.User, nil
}

// SignOut always clears the local session. A failure to revoke it remotely
// is logged and otherwise ignored.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	sess := p.session
	if sess == nil {
		if stored, ok, err := p.persist.Load(); err == nil && ok {
			sess = &stored
		}
	}
	p.session = nil
	clearErr := p.persist.Clear()
	p.mu.Unlock()

	if sess == nil {
		return clearErr
	}
	if err := p.client.Logout(ctx, sess.AccessToken, sess.RefreshToken); err != nil {
		p.logger.Warn("remote sign out failed", "err", err)
	}
	p.publish(Event{Kind: SignedOut, User: sess.User})
	return clearErr
}

// Restore resumes the persisted session, refreshing it once when the access
// token is rejected. It reports false when nobody is signed in.
func (p *Provider) Restore(ctx context.Context) (domain.User, bool, error) {
	p.mu.Lock()
	sess, ok, err := p.persist.Load()
	p.mu.Unlock()
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.User{}, false, nil
	}

	user, err := p.client.Me(ctx, sess.AccessToken)
	if err == nil {
		sess.User = user
		p.mu.Lock()
		p.session = &sess
		p.mu.Unlock()
		p.publish(Event{Kind: SignedIn, User: user})
		return user, true, nil
	}
	if !authclient.IsUnauthorized(err) {
		return domain.User{}, false, fmt.Errorf("restore session: %w", err)
	}
	if sess.RefreshToken == "" {
		p.forget()
		return domain.User{}, false, nil
	}
	resp, err := p.client.Refresh(ctx, sess.RefreshToken)
	if authclient.IsUnauthorized(err) {
		p.forget()
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("refresh session: %w", err)
	}
	user, err = p.establish(resp, SignedIn)
	return user, err == nil, err
}

func (p *Provider) forget() {
	p.mu.Lock()
	p.session = nil
	if err := p.persist.Clear(); err != nil {
		p.logger.Warn("clear session failed", "err", err)
	}
	p.mu.Unlock()
}

// CurrentUser returns the signed-in user, if any.
func (p *Provider) CurrentUser() (domain.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return domain.User{}, false
	}
	return p.session.User, true
}

// AccessToken returns a bearer token, refreshing it shortly before expiry.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return "", ErrNotSignedIn
	}
	if !sess.Expiring(p.now(), refreshSkew) || sess.RefreshToken == "" {
		return sess.AccessToken, nil
	}
	resp, err := p.client.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if authclient.IsUnauthorized(err) {
			p.forget()
			p.publish(Event{Kind: SignedOut, User: sess.User})
			return "", ErrNotSignedIn
		}
		return "", fmt.Errorf("refresh session: %w", err)
	}
	if _, err := p.establish(resp, TokenRefreshed); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// UpdateProfile replaces the profile metadata of the signed-in user.
func (p *Provider) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.User, error) {
	if profile.MainPlatform != "" && !profile.MainPlatform.Valid() {
		return domain.User{}, &domain.ValidationError{Field: "mainPlatform", Message: fmt.Sprintf("unknown platform %q", profile.MainPlatform)}
	}
	token, err := p.AccessToken(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := p.client.UpdateProfile(ctx, token, profile)
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	p.mu.Lock()
	if p.session != nil {
		p.session.User = user
	}
	p.mu.Unlock()
	p.publish(Event{Kind: ProfileUpdated, User: user})
	return user, nil
}
