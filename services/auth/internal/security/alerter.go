// Package security counts security events per client and flags bursts.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter aggregates security events in Redis and reports when a rule's
// threshold is reached.
type AuditAlerter struct {
	client *redis.Client
	prefix string
}

func NewAuditAlerter(client *redis.Client, prefix string) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gamelog:auth:alerts"
	}
	return &AuditAlerter{client: client, prefix: prefix}
}

// Observe records one event for ip. Events without a rule are not counted.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	threshold, window, ok := alertRule(event, outcome)
	if !ok {
		return AlertResult{}, nil
	}
	windowMs := window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, err
	}
	return AlertResult{
		Triggered: count >= threshold,
		Count:     count,
		Threshold: threshold,
		Window:    window,
	}, nil
}

func alertRule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return 20, time.Minute, true
	case "replay":
		return 1, time.Hour, true
	case "fail":
	default:
		return 0, 0, false
	}
	switch strings.TrimSpace(event) {
	case "auth.login", "auth.signup":
		return 10, 5 * time.Minute, true
	case "auth.refresh", "auth.logout", "auth.profile.update":
		return 15, 5 * time.Minute, true
	case "auth.authorize":
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
