// Package rewrite polishes a player's review draft with a text generator.
package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gamelog/pkg/ai"
)

// MaxLength is the longest review, in characters, the rewriter returns.
const MaxLength = 300

const defaultTimeout = 30 * time.Second

const systemPrompt = "You are an experienced video game critic. " +
	"Answer with the rewritten review only, without quotes or preamble."

// Rewriter never fails: any generator problem yields the original draft.
type Rewriter struct {
	gen     ai.TextGenerator
	timeout time.Duration
	logger  *slog.Logger
}

func New(gen ai.TextGenerator) *Rewriter {
	return &Rewriter{gen: gen, timeout: defaultTimeout, logger: slog.Default()}
}

// WithTimeout bounds a single generation call.
func (r *Rewriter) WithTimeout(d time.Duration) *Rewriter {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func (r *Rewriter) WithLogger(logger *slog.Logger) *Rewriter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Enabled reports whether a generator is configured.
func (r *Rewriter) Enabled() bool {
	return r != nil && r.gen != nil
}

// Rewrite returns a more professional version of draft for the given game.
func (r *Rewriter) Rewrite(ctx context.Context, title string, rating int, draft string) string {
	if !r.Enabled() {
		return draft
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.gen.GenerateText(ctx, systemPrompt, Prompt(title, rating, draft))
	if err != nil {
		r.logger.Warn("review rewrite failed", "title", title, "err", err)
		return draft
	}
	out = clean(out)
	if out == "" {
		return draft
	}
	return truncate(out, MaxLength)
}

// Prompt builds the user prompt sent to the generator.
func Prompt(title string, rating int, draft string) string {
	return fmt.Sprintf(
		"The player finished the game %q and rated it %d/10.\n"+
			"Draft review: %q\n"+
			"Rewrite this review to make it more professional, epic and concise (at most %d characters).",
		strings.TrimSpace(title), rating, strings.TrimSpace(draft), MaxLength)
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
