package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/metrics"
	"github.com/ibeckermayer/threadscrape/internal/timeline"
)

// Fetcher paces requests and falls back through its strategies.
type Fetcher struct {
	strategies []Strategy
	delay      time.Duration
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher that waits delay before every page.
func NewFetcher(strategies []Strategy, delay time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		strategies: strategies,
		delay:      delay,
		logger:     logger.With().Str("component", "fetch").Logger(),
	}
}

// Strategies returns the strategy names in fallback order.
func (f *Fetcher) Strategies() []string {
	names := make([]string, len(f.strategies))
	for i, s := range f.strategies {
		names[i] = s.Name()
	}
	return names
}

// FetchPage waits the pacing delay, then returns the first page a strategy
// returns without error.
func (f *Fetcher) FetchPage(ctx context.Context, target Target, cursor string, count int) (timeline.Page, error) {
	if err := wait(ctx, f.delay); err != nil {
		return timeline.Page{}, err
	}

	var errs []error
	for _, s := range f.strategies {
		log := f.logger.With().Str("account", target.Handle).Str("strategy", s.Name()).Logger()

		start := time.Now()
		page, err := s.FetchPage(ctx, target, cursor, count)
		metrics.FetchDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		metrics.FetchRequests.WithLabelValues(s.Name(), statusLabel(err)).Inc()

		if err == nil {
			log.Debug().
				Int("fragments", len(page.Fragments)).
				Bool("has_next", page.NextCursor != "").
				Msg("page fetched")
			return page, nil
		}
		if ctx.Err() != nil {
			return timeline.Page{}, ctx.Err()
		}
		if errors.Is(err, ErrCursorUnsupported) {
			log.Debug().Msg("strategy skipped for paginated request")
		} else {
			log.Warn().Err(err).Msg("strategy failed, trying next")
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}

	return timeline.Page{}, errors.Join(append([]error{ErrAllStrategiesFailed}, errs...)...)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
