// Package fetch retrieves user timeline pages, trying several GraphQL
// endpoints and a headless browser in a configured order.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/auth"
	"github.com/ibeckermayer/threadscrape/internal/timeline"
)

var (
	// ErrUnauthorized means the API rejected the session (401 or 403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited means the API answered 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrBadStatus is any other non-2xx response.
	ErrBadStatus = errors.New("unexpected status")
	// ErrNoTimeline means the response parsed but held no timeline.
	ErrNoTimeline = timeline.ErrNoTimeline
	// ErrCursorUnsupported is returned by strategies that only serve the first page.
	ErrCursorUnsupported = errors.New("strategy cannot paginate")
	// ErrAllStrategiesFailed wraps the joined per-strategy errors.
	ErrAllStrategiesFailed = errors.New("all fetch strategies failed")
	// ErrUnknownStrategy is returned for strategy names nothing implements.
	ErrUnknownStrategy = errors.New("unknown fetch strategy")
)

// Target identifies the account whose timeline is fetched.
type Target struct {
	UserID string
	Handle string
}

// Strategy fetches one timeline page.
type Strategy interface {
	Name() string
	FetchPage(ctx context.Context, target Target, cursor string, count int) (timeline.Page, error)
}

// Sessions supplies the current auth session. *auth.Manager satisfies it.
type Sessions interface {
	Session() (*auth.Session, error)
}

// BrowserName is the strategy name of the headless browser fallback.
const BrowserName = "browser"

// Options configures the strategies built by NewStrategies.
type Options struct {
	Client         *http.Client
	Sessions       Sessions
	Headless       bool
	BrowserTimeout time.Duration
}

// NewStrategies builds strategies for names, in order.
func NewStrategies(names []string, opts Options) ([]Strategy, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if name == BrowserName {
			out = append(out, NewBrowser(opts.Sessions, opts.Headless, opts.BrowserTimeout))
			continue
		}
		ep, ok := EndpointByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		out = append(out, NewGraphQL(ep, opts.Client, opts.Sessions))
	}
	return out, nil
}

// statusLabel maps a strategy error to the metrics status label.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNoTimeline):
		return "no_timeline"
	case errors.Is(err, ErrCursorUnsupported):
		return "skipped"
	default:
		return "error"
	}
}
