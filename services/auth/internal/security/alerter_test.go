package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuditAlerter(client, "test:alerts")
}

func TestObserveTriggersAtThreshold(t *testing.T) {
	alerter := newAlerter(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		result, err := alerter.Observe(ctx, "auth.login", "fail", "203.0.113.4")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered != (i == 10) {
			t.Fatalf("attempt %d: triggered=%v", i, result.Triggered)
		}
	}
}

func TestObserveReplayAlertsImmediately(t *testing.T) {
	result, err := newAlerter(t).Observe(context.Background(), "auth.refresh", "replay", "203.0.113.4")
	if err != nil || !result.Triggered {
		t.Fatalf("expected replay to trigger, got %+v %v", result, err)
	}
}

func TestObserveIgnoresUnknownRule(t *testing.T) {
	result, err := newAlerter(t).Observe(context.Background(), "auth.custom", "success", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 0 {
		t.Fatalf("unexpected result for unknown rule: %+v", result)
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var a *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without redis")
	}
	if _, err := a.Observe(context.Background(), "auth.login", "fail", "x"); err != nil {
		t.Fatalf("nil alerter should not fail: %v", err)
	}
}
