// Package metrics defines the Prometheus collectors for scrape runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	FetchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_fetch_requests_total",
		Help: "Timeline page requests by strategy and outcome.",
	}, []string{"strategy", "status"})

	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threadscrape_fetch_request_duration_seconds",
		Help:    "Duration of timeline page requests.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"strategy"})

	TweetsCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_tweets_collected_total",
		Help: "Normalized tweets collected per account.",
	}, []string{"account"})

	NormalizeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threadscrape_normalize_errors_total",
		Help: "Raw fragments that failed normalization.",
	})

	FilterResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_filter_results_total",
		Help: "Filter outcomes by first failing check.",
	}, []string{"reason"})

	OCRImages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_ocr_images_total",
		Help: "Processed images by outcome.",
	}, []string{"status"})

	SelfThreads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_self_threads_total",
		Help: "Reconstructed self-threads by strategy.",
	}, []string{"strategy"})

	Accounts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadscrape_accounts_total",
		Help: "Accounts processed by outcome.",
	}, []string{"status"})

	LastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threadscrape_last_run_timestamp_seconds",
		Help: "Unix time the last pipeline run finished.",
	})
)

// MustRegister registers the package collectors once.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			FetchRequests,
			FetchDuration,
			TweetsCollected,
			NormalizeErrors,
			FilterResults,
			OCRImages,
			SelfThreads,
			Accounts,
			LastRun,
		)
	})
}

// StartServer serves /metrics on addr until ctx is done.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// WriteTextfile dumps the gathered metrics in text exposition format, for
// node_exporter's textfile collector after one-shot runs.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, gatherer)
}
