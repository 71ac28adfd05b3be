package ocr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/threadscrape/internal/metrics"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

// Options configures a Processor.
type Options struct {
	Dir       string
	MaxImages int
	Threshold float64
	Workers   int
}

// Processor downloads tweet photos, runs them through an Engine and attaches
// the accepted text to each tweet.
type Processor struct {
	engine Engine
	client *http.Client
	opts   Options
	logger zerolog.Logger
}

// NewProcessor creates a processor. A nil client uses http.DefaultClient.
func NewProcessor(engine Engine, client *http.Client, opts Options, logger zerolog.Logger) *Processor {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Processor{
		engine: engine,
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "ocr").Logger(),
	}
}

// Passthrough wraps tweets without reading any images.
func Passthrough(tweets []types.Tweet) []types.ProcessedTweet {
	out := make([]types.ProcessedTweet, len(tweets))
	for i, t := range tweets {
		out[i] = types.ProcessedTweet{Tweet: t}
	}
	return out
}

// Process enriches tweets in order. Per-image failures are recorded on the
// image and never fail the batch; only cancellation does.
func (p *Processor) Process(ctx context.Context, tweets []types.Tweet) ([]types.ProcessedTweet, error) {
	if err := os.MkdirAll(p.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}

	out := make([]types.ProcessedTweet, len(tweets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, t := range tweets {
		g.Go(func() error {
			pt, err := p.processTweet(ctx, t)
			if err != nil {
				return err
			}
			out[i] = pt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) processTweet(ctx context.Context, t types.Tweet) (types.ProcessedTweet, error) {
	pt := types.ProcessedTweet{Tweet: t}
	photos := t.Photos()
	if p.opts.MaxImages > 0 && len(photos) > p.opts.MaxImages {
		photos = photos[:p.opts.MaxImages]
	}

	var accepted []string
	for n, m := range photos {
		if err := ctx.Err(); err != nil {
			return pt, err
		}
		img := p.processImage(ctx, t.ID, n, m.URL)
		pt.Images = append(pt.Images, img)
		if img.Error == "" && img.Text != "" && img.Confidence >= p.opts.Threshold {
			accepted = append(accepted, img.Text)
		}
	}
	pt.CombinedImageText = strings.Join(accepted, " ")
	return pt, nil
}

func (p *Processor) processImage(ctx context.Context, tweetID string, n int, url string) types.ImageText {
	log := p.logger.With().Str("tweet_id", tweetID).Str("url", url).Logger()
	img := types.ImageText{URL: url}

	path := filepath.Join(p.opts.Dir, fmt.Sprintf("tweet_%s_img_%d.jpg", tweetID, n))
	defer os.Remove(path)

	if err := p.download(ctx, url, path); err != nil {
		log.Warn().Err(err).Msg("image download failed")
		metrics.OCRImages.WithLabelValues("download_error").Inc()
		img.Error = err.Error()
		return img
	}

	res, err := p.engine.Recognize(ctx, path)
	if err != nil {
		log.Warn().Err(err).Msg("ocr failed")
		metrics.OCRImages.WithLabelValues("ocr_error").Inc()
		img.Error = err.Error()
		return img
	}

	img.Text = strings.TrimSpace(res.Text)
	img.Confidence = res.Confidence
	status := "accepted"
	if img.Text == "" || img.Confidence < p.opts.Threshold {
		status = "low_confidence"
	}
	metrics.OCRImages.WithLabelValues(status).Inc()
	log.Debug().Float64("confidence", img.Confidence).Str("status", status).Msg("image processed")
	return img
}

func (p *Processor) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
