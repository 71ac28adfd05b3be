// Package filter selects tweets by recency, engagement, language and
// reply/repost status.
package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

// ErrInvalidConfig is returned by New for configurations that cannot be applied.
var ErrInvalidConfig = errors.New("invalid filter config")

// Config holds the filter thresholds. Zero months disables the recency check
// and an empty language disables the language check.
type Config struct {
	// DateRangeMonths of 0 keeps tweets of any age. An omitted key keeps
	// the default of 6 since config files decode over the defaults.
	DateRangeMonths         int    `toml:"date_range_months"`
	MinLikes                int    `toml:"min_likes"`
	MinReposts              int    `toml:"min_reposts"`
	RequireEither           bool   `toml:"require_either"`
	Language                string `toml:"language"`
	ExcludeReplies          bool   `toml:"exclude_replies"`
	ExcludeReposts          bool   `toml:"exclude_reposts"`
	IncludeSelfReplyThreads bool   `toml:"include_self_reply_threads"`
}

// Reason names the first check a tweet failed.
type Reason string

const (
	ReasonPassed     Reason = "passed"
	ReasonTooOld     Reason = "too_old"
	ReasonEngagement Reason = "low_engagement"
	ReasonLanguage   Reason = "language"
	ReasonRepost     Reason = "repost"
	ReasonReply      Reason = "reply"
)

// Reasons lists every Reason in check order.
var Reasons = []Reason{ReasonPassed, ReasonTooOld, ReasonEngagement, ReasonLanguage, ReasonRepost, ReasonReply}

// Filter applies a validated Config against a fixed clock.
type Filter struct {
	cfg Config
	now func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock sets the time source used for the recency cutoff.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		f.now = now
	}
}

// New validates cfg and returns a Filter.
func New(cfg Config, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Validate reports negative thresholds and malformed language codes.
func (c Config) Validate() error {
	switch {
	case c.DateRangeMonths < 0:
		return fmt.Errorf("%w: date_range_months %d is negative", ErrInvalidConfig, c.DateRangeMonths)
	case c.MinLikes < 0:
		return fmt.Errorf("%w: min_likes %d is negative", ErrInvalidConfig, c.MinLikes)
	case c.MinReposts < 0:
		return fmt.Errorf("%w: min_reposts %d is negative", ErrInvalidConfig, c.MinReposts)
	case c.Language != "" && !validLanguage(c.Language):
		return fmt.Errorf("%w: unsupported language code %q", ErrInvalidConfig, c.Language)
	}
	return nil
}

// validLanguage accepts the short codes the API reports, like "en", "pt" or "und".
func validLanguage(code string) bool {
	if len(code) < 2 || len(code) > 3 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Config returns the configuration the filter was built with.
func (f *Filter) Config() Config {
	return f.cfg
}

// Apply returns the tweets that pass every check, in input order.
// The cutoff is computed once per call.
func (f *Filter) Apply(tweets []types.Tweet) []types.Tweet {
	cutoff := f.cutoff()
	out := make([]types.Tweet, 0, len(tweets))
	for _, t := range tweets {
		if f.explain(t, cutoff) == ReasonPassed {
			out = append(out, t)
		}
	}
	return out
}

// Tally is Apply that also counts every outcome by reason.
func (f *Filter) Tally(tweets []types.Tweet) ([]types.Tweet, map[Reason]int) {
	cutoff := f.cutoff()
	out := make([]types.Tweet, 0, len(tweets))
	counts := make(map[Reason]int, len(Reasons))
	for _, t := range tweets {
		r := f.explain(t, cutoff)
		counts[r]++
		if r == ReasonPassed {
			out = append(out, t)
		}
	}
	return out, counts
}

// Match reports whether a single tweet passes.
func (f *Filter) Match(t types.Tweet) bool {
	return f.Explain(t) == ReasonPassed
}

// Explain returns ReasonPassed or the first failing check.
func (f *Filter) Explain(t types.Tweet) Reason {
	return f.explain(t, f.cutoff())
}

func (f *Filter) cutoff() time.Time {
	if f.cfg.DateRangeMonths == 0 {
		return time.Time{}
	}
	return f.now().AddDate(0, -f.cfg.DateRangeMonths, 0)
}

func (f *Filter) explain(t types.Tweet, cutoff time.Time) Reason {
	if !cutoff.IsZero() && t.CreatedAt.Before(cutoff) {
		return ReasonTooOld
	}
	if !f.engaged(t) {
		return ReasonEngagement
	}
	if f.cfg.Language != "" && t.Language != f.cfg.Language {
		return ReasonLanguage
	}
	if f.cfg.ExcludeReposts && t.IsRepost {
		return ReasonRepost
	}
	if t.IsReply && f.cfg.ExcludeReplies && !(f.cfg.IncludeSelfReplyThreads && t.IsSelfReply()) {
		return ReasonReply
	}
	return ReasonPassed
}

func (f *Filter) engaged(t types.Tweet) bool {
	likes := t.LikeCount >= f.cfg.MinLikes
	reposts := t.RepostCount >= f.cfg.MinReposts
	if f.cfg.RequireEither {
		return likes || reposts
	}
	return likes && reposts
}
