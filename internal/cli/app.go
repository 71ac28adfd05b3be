package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/auth"
	"github.com/ibeckermayer/threadscrape/internal/fetch"
	"github.com/ibeckermayer/threadscrape/internal/filter"
	"github.com/ibeckermayer/threadscrape/internal/handles"
	"github.com/ibeckermayer/threadscrape/internal/notifier"
	"github.com/ibeckermayer/threadscrape/internal/ocr"
	"github.com/ibeckermayer/threadscrape/internal/pipeline"
	"github.com/ibeckermayer/threadscrape/internal/progress"
	"github.com/ibeckermayer/threadscrape/internal/report"
	"github.com/ibeckermayer/threadscrape/internal/store"
)

// stores holds the open state backends. With the sqlite backend one
// database serves as both the KV and the tweet archive.
type stores struct {
	kv      store.KV
	archive *store.Store
}

func (s *stores) Close() error {
	var errs []error
	if s.kv != nil {
		errs = append(errs, s.kv.Close())
	}
	if s.archive != nil && store.KV(s.archive) != s.kv {
		errs = append(errs, s.archive.Close())
	}
	return errors.Join(errs...)
}

// openStores opens the configured KV, and the archive when withArchive is set.
func (e *env) openStores(ctx context.Context, withArchive bool) (*stores, error) {
	sc := e.cfg.Store
	if sc.Backend == "sqlite" {
		db, err := store.New(sc.Path)
		if err != nil {
			return nil, err
		}
		s := &stores{kv: db}
		if withArchive {
			s.archive = db
		}
		return s, nil
	}

	kv, err := store.Open(ctx, store.Options{
		Backend:       sc.Backend,
		SQLitePath:    sc.Path,
		JSONPath:      sc.JSONPath,
		RedisAddr:     sc.RedisAddr,
		RedisPassword: sc.RedisPassword,
		RedisDB:       sc.RedisDB,
		RedisPrefix:   sc.RedisPrefix,
	})
	if err != nil {
		return nil, err
	}
	s := &stores{kv: kv}
	if withArchive {
		if s.archive, err = store.New(sc.Path); err != nil {
			kv.Close()
			return nil, err
		}
	}
	return s, nil
}

func (e *env) authManager() (*auth.Manager, error) {
	path, err := e.cfg.AuthFile()
	if err != nil {
		return nil, fmt.Errorf("auth file location: %w", err)
	}
	m := auth.NewManager(path, e.logger)
	m.SetBearerToken(e.cfg.Auth.BearerToken)
	return m, nil
}

func (e *env) resolver(kv store.KV) *handles.Resolver {
	return handles.NewResolver(e.cfg.Handles, kv, e.logger)
}

// buildPipeline wires every pipeline collaborator from the loaded config.
func (e *env) buildPipeline(s *stores) (*pipeline.Pipeline, error) {
	cfg := e.cfg

	mgr, err := e.authManager()
	if err != nil {
		return nil, err
	}

	strategies, err := fetch.NewStrategies(cfg.Scraping.Strategies, fetch.Options{
		Client:         &http.Client{Timeout: time.Duration(cfg.Scraping.HTTPTimeoutSec) * time.Second},
		Sessions:       mgr,
		Headless:       cfg.Scraping.Headless,
		BrowserTimeout: time.Duration(cfg.Scraping.BrowserTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	flt, err := filter.New(cfg.Filters)
	if err != nil {
		return nil, err
	}

	reports, err := report.New(0)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Config:   cfg,
		Fetcher:  fetch.NewFetcher(strategies, cfg.RequestDelay(), e.logger),
		Resolver: e.resolver(s.kv),
		Progress: progress.NewTracker(s.kv, e.logger),
		Filter:   flt,
		Auth:     mgr,
		Reports:  reports,
		Logger:   e.logger,
	}
	if s.archive != nil {
		deps.Archive = s.archive
	}
	if cfg.OCR.Enabled {
		engine := ocr.NewTesseract(cfg.OCR.Command, cfg.OCR.Language, time.Duration(cfg.OCR.TimeoutSec)*time.Second)
		deps.OCR = ocr.NewProcessor(engine, nil, ocr.Options{
			Dir:       cfg.OCR.ImagesDir,
			MaxImages: cfg.OCR.MaxImages,
			Threshold: cfg.OCR.ConfidenceThreshold,
			Workers:   cfg.OCR.Workers,
		}, e.logger)
	}

	if cfg.Notify.Enabled {
		n, err := notifier.NewFromConfig(cfg.Notify)
		if err != nil {
			return nil, err
		}
		deps.Notifier = n
	}

	return pipeline.New(deps), nil
}
