package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRefreshStore(t *testing.T) (*RedisRefreshTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRefreshTokenStore(client), mr
}

func TestRedisRefreshTokenStoreRotateAndDelete(t *testing.T) {
	s, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := s.NewToken(ctx, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, next, err := s.RotateToken(ctx, token, time.Minute)
	if err != nil {
		t.Fatalf("rotate token: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
	if next == "" || next == token {
		t.Fatalf("expected rotated token")
	}

	if err := s.DeleteToken(ctx, next); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, _, err := s.RotateToken(ctx, next, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after delete, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreDetectsReplay(t *testing.T) {
	s, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := s.NewToken(ctx, "user-2", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	_, next, err := s.RotateToken(ctx, token, time.Minute)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	if _, _, err := s.RotateToken(ctx, token, time.Minute); !errors.Is(err, ErrRefreshTokenReplay) {
		t.Fatalf("expected replay detection, got: %v", err)
	}
	if _, _, err := s.RotateToken(ctx, next, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected family revoked after replay, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreExpires(t *testing.T) {
	s, mr := newRefreshStore(t)
	ctx := context.Background()

	token, err := s.NewToken(ctx, "user-3", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, _, err := s.RotateToken(ctx, token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token to be invalid, got: %v", err)
	}
}

func TestRedisRefreshTokenStoreConcurrentRotateAllowsOneWinner(t *testing.T) {
	s, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := s.NewToken(ctx, "user-4", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}

	const workers = 2
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	issued := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, next, err := s.RotateToken(ctx, token, time.Minute)
			if err == nil {
				issued <- next
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	close(issued)

	successes, replays := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrRefreshTokenReplay):
			replays++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if successes != 1 || replays != 1 {
		t.Fatalf("expected one success and one replay, got successes=%d replays=%d", successes, replays)
	}
	for next := range issued {
		if _, _, err := s.RotateToken(ctx, next, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected family revoked after replay race, got: %v", err)
		}
	}
}
