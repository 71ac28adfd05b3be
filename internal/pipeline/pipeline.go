// Package pipeline runs a scrape: per account fetch, normalize, filter and
// OCR, then the combined exports, thread reconstruction and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/export"
	"github.com/ibeckermayer/threadscrape/internal/fetch"
	"github.com/ibeckermayer/threadscrape/internal/filter"
	"github.com/ibeckermayer/threadscrape/internal/handles"
	"github.com/ibeckermayer/threadscrape/internal/metrics"
	"github.com/ibeckermayer/threadscrape/internal/normalize"
	"github.com/ibeckermayer/threadscrape/internal/ocr"
	"github.com/ibeckermayer/threadscrape/internal/progress"
	"github.com/ibeckermayer/threadscrape/internal/report"
	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/thread"
	"github.com/ibeckermayer/threadscrape/internal/timeline"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

// ErrNoAccounts is returned when a run has nothing to scrape.
var ErrNoAccounts = errors.New("no accounts to scrape")

// PageFetcher is satisfied by *fetch.Fetcher.
type PageFetcher interface {
	FetchPage(ctx context.Context, target fetch.Target, cursor string, count int) (timeline.Page, error)
}

// Enricher is satisfied by *ocr.Processor.
type Enricher interface {
	Process(ctx context.Context, tweets []types.Tweet) ([]types.ProcessedTweet, error)
}

// Archive is satisfied by *store.Store.
type Archive interface {
	ArchiveTweets(ctx context.Context, tweets []types.Tweet, scrapedAt time.Time) error
}

// AuthChecker is satisfied by *auth.Manager.
type AuthChecker interface {
	IsAuthenticated() bool
}

// ReportSender is satisfied by *notifier.Notifier.
type ReportSender interface {
	SendReport(rep *report.Report) error
}

// Deps are the collaborators of a Pipeline. Archive, OCR, Auth, Reports and
// Notifier are optional.
type Deps struct {
	Config   *config.Config
	Fetcher  PageFetcher
	Resolver *handles.Resolver
	Progress *progress.Tracker
	Filter   *filter.Filter
	Archive  Archive
	OCR      Enricher
	Auth     AuthChecker
	Reports  *report.Builder
	Notifier ReportSender
	Logger   zerolog.Logger
}

// Pipeline runs scrapes.
type Pipeline struct {
	cfg      *config.Config
	fetcher  PageFetcher
	resolver *handles.Resolver
	progress *progress.Tracker
	filter   *filter.Filter
	archive  Archive
	ocr      Enricher
	auth     AuthChecker
	reports  *report.Builder
	notifier ReportSender
	exporter *export.Exporter
	logger   zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline from deps.
func New(d Deps) *Pipeline {
	return &Pipeline{
		cfg:      d.Config,
		fetcher:  d.Fetcher,
		resolver: d.Resolver,
		progress: d.Progress,
		filter:   d.Filter,
		archive:  d.Archive,
		ocr:      d.OCR,
		auth:     d.Auth,
		reports:  d.Reports,
		notifier: d.Notifier,
		exporter: export.New(d.Config.CombinedDir(), d.Config.Output.Formats),
		logger:   d.Logger.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
		sleep:    sleep,
	}
}

// Options changes a single run.
type Options struct {
	// Reset discards saved progress before the run.
	Reset bool
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Completed  []string
	Skipped    []string
	Failed     map[string]error
	Collected  int
	Kept       int
	Threads    map[thread.Strategy][]types.SelfThread
	Exports    []string
	ReportPath string
}

// Run scrapes accounts in order. A failing account is logged, left incomplete
// for the next run, and does not stop the others.
func (p *Pipeline) Run(ctx context.Context, accounts []config.Account, opts Options) (*Result, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if p.auth != nil && !p.auth.IsAuthenticated() {
		p.logger.Warn().Msg("auth file missing or invalid, requests will likely fail")
	}

	var st progress.State
	var err error
	if opts.Reset {
		st, err = p.progress.Reset(ctx)
	} else {
		st, err = p.progress.Load(ctx)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: st.RunID, Failed: make(map[string]error)}
	log := p.logger.With().Str("run_id", st.RunID).Logger()
	log.Info().Int("accounts", len(accounts)).Int("already_completed", len(st.CompletedAccounts)).Msg("run started")

	var raw, kept []types.Tweet
	for i, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		alog := log.With().Str("account", acc.Handle).Logger()

		if st.IsCompleted(acc.Handle) {
			alog.Info().Msg("skipping, already completed")
			metrics.Accounts.WithLabelValues("skipped").Inc()
			res.Skipped = append(res.Skipped, acc.Handle)
			r, k := p.loadCompleted(acc.Handle, alog)
			raw = append(raw, r...)
			kept = append(kept, k...)
			continue
		}

		r, processed, err := p.processAccount(ctx, acc, alog)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			alog.Error().Err(err).Msg("account failed")
			metrics.Accounts.WithLabelValues("failed").Inc()
			res.Failed[acc.Handle] = err
		} else {
			metrics.Accounts.WithLabelValues("completed").Inc()
			res.Completed = append(res.Completed, acc.Handle)
			res.Collected += len(r)
			raw = append(raw, r...)
			for _, pt := range processed {
				kept = append(kept, pt.Tweet)
			}
		}

		if i < len(accounts)-1 {
			if err := p.sleep(ctx, p.cfg.AccountDelay()); err != nil {
				return res, err
			}
		}
	}
	res.Kept = len(kept)

	if err := p.finish(ctx, res, raw, kept, len(accounts), log); err != nil {
		return res, err
	}

	metrics.LastRun.SetToCurrentTime()
	log.Info().
		Int("completed", len(res.Completed)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Int("collected", res.Collected).
		Int("kept", res.Kept).
		Msg("run finished")
	return res, nil
}

// processAccount runs one account through fetch, normalize, filter and OCR
// and marks it completed.
func (p *Pipeline) processAccount(ctx context.Context, acc config.Account, log zerolog.Logger) ([]types.Tweet, []types.ProcessedTweet, error) {
	userID, err := p.resolver.Resolve(ctx, acc.Handle)
	if err != nil {
		return nil, nil, err
	}

	cursor, err := p.progress.StartAccount(ctx, acc.Handle)
	if err != nil {
		return nil, nil, err
	}
	if cursor != "" {
		log.Info().Msg("resuming from saved cursor")
	}

	raw, err := p.collect(ctx, fetch.Target{UserID: userID, Handle: acc.Handle}, cursor, log)
	if err != nil {
		return nil, nil, err
	}
	metrics.TweetsCollected.WithLabelValues(acc.Handle).Add(float64(len(raw)))

	if p.archive != nil {
		if err := p.archive.ArchiveTweets(ctx, raw, p.now()); err != nil {
			log.Warn().Err(err).Msg("failed to archive tweets")
		}
	}

	filtered, counts := p.filter.Tally(raw)
	for reason, n := range counts {
		metrics.FilterResults.WithLabelValues(string(reason)).Add(float64(n))
	}
	log.Info().Int("raw", len(raw)).Int("kept", len(filtered)).Msg("filtered tweets")

	processed := ocr.Passthrough(filtered)
	if p.ocr != nil {
		processed, err = p.ocr.Process(ctx, filtered)
		if err != nil {
			return nil, nil, fmt.Errorf("process images: %w", err)
		}
	}

	if err := store.SaveDataset(store.DatasetPath(p.cfg.Output.Dir, store.StageProcessed, acc.Handle), processed); err != nil {
		return nil, nil, err
	}
	if _, err := p.progress.MarkCompleted(ctx, acc.Handle); err != nil {
		return nil, nil, err
	}
	return raw, processed, nil
}

// collect pages through the timeline until the cap, the last page, or an
// error. The raw dataset and cursor are saved after every page so an
// interrupted account resumes where it stopped.
func (p *Pipeline) collect(ctx context.Context, target fetch.Target, cursor string, log zerolog.Logger) ([]types.Tweet, error) {
	limit := p.cfg.TweetCap()
	perRequest := p.cfg.Scraping.TweetsPerRequest
	rawPath := store.DatasetPath(p.cfg.Output.Dir, store.StageRaw, target.Handle)

	batch := []types.Tweet{}
	if cursor != "" {
		prev, rejected, err := store.LoadRecords[types.Tweet](rawPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logRejected(log, rejected)
		batch = append(batch, prev...)
	}
	seen := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		seen[t.ID] = struct{}{}
	}

	for len(batch) < limit {
		page, err := p.fetcher.FetchPage(ctx, target, cursor, min(perRequest, limit-len(batch)))
		if err != nil {
			return nil, err
		}

		tweets, errs := normalize.NormalizeBatch(target.Handle, page.Fragments)
		metrics.NormalizeErrors.Add(float64(len(errs)))
		for _, e := range errs {
			log.Debug().Err(e).Msg("skipping malformed fragment")
		}

		added := 0
		for _, t := range tweets {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			batch = append(batch, t)
			added++
		}
		log.Info().
			Str("endpoint", page.Endpoint).
			Int("fetched", len(tweets)).
			Int("total", len(batch)).
			Msg("page collected")

		if err := store.SaveDataset(rawPath, batch); err != nil {
			return nil, err
		}

		next := page.NextCursor
		last := next == "" || next == cursor || len(page.Fragments) == 0
		if !last {
			cursor = next
		}
		if err := p.progress.SaveCursor(ctx, target.Handle, cursor, added); err != nil {
			return nil, err
		}
		if last {
			break
		}
	}

	if len(batch) > limit {
		batch = batch[:limit]
		if err := store.SaveDataset(rawPath, batch); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// loadCompleted reads back the datasets of an account finished earlier in
// the run so threads and reports still cover it.
func (p *Pipeline) loadCompleted(handle string, log zerolog.Logger) ([]types.Tweet, []types.Tweet) {
	raw, rejected, err := store.LoadRecords[types.Tweet](store.DatasetPath(p.cfg.Output.Dir, store.StageRaw, handle))
	if err != nil {
		log.Warn().Err(err).Msg("raw dataset unavailable")
	}
	logRejected(log, rejected)
	processed, rejected, err := store.LoadRecords[types.ProcessedTweet](store.DatasetPath(p.cfg.Output.Dir, store.StageProcessed, handle))
	if err != nil {
		log.Warn().Err(err).Msg("processed dataset unavailable")
	}
	logRejected(log, rejected)
	kept := make([]types.Tweet, len(processed))
	for i, pt := range processed {
		kept[i] = pt.Tweet
	}
	return raw, kept
}

func logRejected(log zerolog.Logger, rejected []error) {
	metrics.NormalizeErrors.Add(float64(len(rejected)))
	for _, err := range rejected {
		log.Warn().Err(err).Msg("skipping invalid stored record")
	}
}

// finish writes the combined exports, threads and report.
func (p *Pipeline) finish(ctx context.Context, res *Result, raw, kept []types.Tweet, accounts int, log zerolog.Logger) error {
	combined, err := export.Combine(p.cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("combine datasets: %w", err)
	}
	paths, err := p.exporter.ExportTweets(combined)
	if err != nil {
		return fmt.Errorf("export datasets: %w", err)
	}
	res.Exports = append(res.Exports, paths...)
	log.Info().Int("tweets", len(combined)).Strs("files", paths).Msg("combined datasets exported")

	strategy, err := thread.ParseStrategy(p.cfg.Threads.Strategy)
	if err != nil {
		return err
	}
	source := raw
	if p.cfg.Threads.ApplyFilter {
		source = kept
	}
	threads, err := thread.Reconstruct(strategy, source)
	if err != nil {
		return err
	}
	res.Threads = threads

	for s, ts := range threads {
		metrics.SelfThreads.WithLabelValues(string(s)).Add(float64(len(ts)))
		path, err := p.exporter.ExportThreads(string(s), ts)
		if err != nil {
			return fmt.Errorf("export threads: %w", err)
		}
		res.Exports = append(res.Exports, path)
		log.Info().Str("strategy", string(s)).Int("threads", len(ts)).Msg("self-threads reconstructed")
	}

	if p.cfg.Threads.Report && p.reports != nil {
		rep, err := p.reports.Build(threads, report.Stats{Accounts: accounts, Tweets: len(source)}, p.now())
		if err != nil {
			return err
		}
		if res.ReportPath, err = rep.Save(p.cfg.ReportDir()); err != nil {
			return err
		}
		log.Info().Str("path", res.ReportPath).Msg("report saved")

		if p.notifier != nil {
			if err := p.notifier.SendReport(rep); err != nil {
				log.Warn().Err(err).Msg("failed to email report")
			} else {
				log.Info().Msg("report emailed")
			}
		}
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
