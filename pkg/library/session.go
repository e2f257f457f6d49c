package library

import (
	"context"
	"errors"
	"time"

	"gamelog/pkg/domain"
	"gamelog/pkg/identity"
)

// ErrRestoreTimeout means the identity service did not answer in time. The
// library is left signed out.
var ErrRestoreTimeout = errors.New("session restore timed out")

const DefaultRestoreTimeout = 10 * time.Second

// SessionSource resumes a persisted session.
type SessionSource interface {
	Restore(ctx context.Context) (domain.User, bool, error)
}

// Restore resumes the previous session within timeout and opens the library
// for the returned user. Any failure leaves the library closed.
func (s *Store) Restore(ctx context.Context, src SessionSource, timeout time.Duration) (domain.User, bool, error) {
	if timeout <= 0 {
		timeout = DefaultRestoreTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		user domain.User
		ok   bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		user, ok, err := src.Restore(rctx)
		done <- result{user, ok, err}
	}()

	select {
	case r := <-done:
		if r.err != nil || !r.ok {
			s.Close()
			return domain.User{}, false, r.err
		}
		if err := s.FetchAll(ctx, r.user.ID); err != nil {
			return r.user, true, err
		}
		return r.user, true, nil
	case <-rctx.Done():
		s.Close()
		if err := ctx.Err(); err != nil {
			return domain.User{}, false, err
		}
		return domain.User{}, false, ErrRestoreTimeout
	}
}

// Follow keeps the library in step with authentication changes until ctx
// ends or the stream closes: sign-in loads the player's list and sign-out
// clears it.
func (s *Store) Follow(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Store) handle(ctx context.Context, ev identity.Event) {
	switch ev.Kind {
	case identity.SignedIn, identity.TokenRefreshed:
		if ev.User.ID == "" {
			return
		}
		if ev.Kind == identity.TokenRefreshed && ev.User.ID == s.OwnerID() {
			return
		}
		if err := s.FetchAll(ctx, ev.User.ID); err != nil {
			s.logger.Error("load games after sign-in failed", "user_id", ev.User.ID, "err", err)
		}
	case identity.SignedOut:
		s.Close()
	}
}
