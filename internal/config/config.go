package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/threadscrape/internal/filter"
	"github.com/ibeckermayer/threadscrape/internal/thread"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	Version      int               `toml:"version"`
	AccountsFile string            `toml:"accounts_file"`
	Filters      filter.Config     `toml:"filters"`
	Scraping     ScrapingConfig    `toml:"scraping"`
	Auth         AuthConfig        `toml:"auth"`
	OCR          OCRConfig         `toml:"ocr"`
	Store        StoreConfig       `toml:"store"`
	Output       OutputConfig      `toml:"output"`
	Threads      ThreadsConfig     `toml:"threads"`
	Schedule     ScheduleConfig    `toml:"schedule"`
	Notify       NotifyConfig      `toml:"notify"`
	Metrics      MetricsConfig     `toml:"metrics"`
	Log          LogConfig         `toml:"log"`
	Handles      map[string]string `toml:"handles"`
}

type ScrapingConfig struct {
	TweetsPerRequest     int      `toml:"tweets_per_request"`
	MaxTweetsPerAccount  int      `toml:"max_tweets_per_account"`
	RequestDelayMS       int      `toml:"request_delay_ms"`
	AccountDelayMS       int      `toml:"account_delay_ms"`
	Strategies           []string `toml:"strategies"`
	Headless             bool     `toml:"headless"`
	BrowserTimeoutSec    int      `toml:"browser_timeout_sec"`
	HTTPTimeoutSec       int      `toml:"http_timeout_sec"`
	TestMode             bool     `toml:"test_mode"`
	TestTweetsPerAccount int      `toml:"test_tweets_per_account"`
}

type AuthConfig struct {
	File        string `toml:"file"`
	BearerToken string `toml:"bearer_token"`
}

type OCRConfig struct {
	Enabled             bool    `toml:"enabled"`
	Command             string  `toml:"command"`
	Language            string  `toml:"language"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	MaxImages           int     `toml:"max_images"`
	ImagesDir           string  `toml:"images_dir"`
	Workers             int     `toml:"workers"`
	TimeoutSec          int     `toml:"timeout_sec"`
}

type StoreConfig struct {
	Backend       string `toml:"backend"` // "sqlite", "json" or "redis"
	Path          string `toml:"path"`
	JSONPath      string `toml:"json_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

type OutputConfig struct {
	Dir     string   `toml:"dir"`
	Formats []string `toml:"formats"`
}

type ThreadsConfig struct {
	Strategy    string `toml:"strategy"`
	ApplyFilter bool   `toml:"apply_filter"`
	Report      bool   `toml:"report"`
}

type ScheduleConfig struct {
	Cron           string `toml:"cron"`
	Timezone       string `toml:"timezone"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
}

// NotifyConfig controls emailing the thread report after a run.
type NotifyConfig struct {
	Enabled  bool   `toml:"enabled"`
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

type MetricsConfig struct {
	Addr     string `toml:"addr"`
	Textfile string `toml:"textfile"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:      1,
		AccountsFile: "accounts.yaml",
		Filters: filter.Config{
			DateRangeMonths:         6,
			MinLikes:                50,
			MinReposts:              10,
			RequireEither:           true,
			Language:                "en",
			ExcludeReplies:          true,
			ExcludeReposts:          true,
			IncludeSelfReplyThreads: true,
		},
		Scraping: ScrapingConfig{
			TweetsPerRequest:     50,
			MaxTweetsPerAccount:  200,
			RequestDelayMS:       3000,
			AccountDelayMS:       10000,
			Strategies:           []string{"user_tweets", "user_tweets_and_replies", "user_tweets_v2"},
			Headless:             true,
			BrowserTimeoutSec:    60,
			HTTPTimeoutSec:       30,
			TestTweetsPerAccount: 20,
		},
		OCR: OCRConfig{
			Enabled:             true,
			Command:             "tesseract",
			Language:            "eng",
			ConfidenceThreshold: 60,
			MaxImages:           4,
			ImagesDir:           filepath.Join("data", "images"),
			Workers:             2,
			TimeoutSec:          60,
		},
		Store: StoreConfig{
			Backend:     "sqlite",
			Path:        filepath.Join("data", "threadscrape.db"),
			JSONPath:    filepath.Join("data", "state.json"),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "threadscrape:",
		},
		Output: OutputConfig{
			Dir:     "data",
			Formats: []string{"json", "csv"},
		},
		Threads: ThreadsConfig{
			Strategy: string(thread.StrategyBoth),
			Report:   true,
		},
		Schedule: ScheduleConfig{
			Cron:           "0 */6 * * *",
			TimeoutMinutes: 30,
		},
		Notify: NotifyConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
		Metrics: MetricsConfig{
			Addr: ":9091",
		},
		Log: LogConfig{
			Level: "info",
		},
		Handles: DefaultHandles(),
	}
}

// DefaultHandles are user ids verified for the stock roster. Configured
// handles always win over anything cached.
func DefaultHandles() map[string]string {
	return map[string]string{
		"jack":           "12",
		"gregisenberg":   "14642331",
		"heybarsee":      "1552871185431527424",
		"jspeiser":       "21213097",
		"bentossell":     "53175441",
		"levelsio":       "1577241403",
		"thesamparr":     "625733783",
		"thisiskp_":      "4736729423",
		"danshipper":     "19829693",
		"tibo_maker":     "470129898",
		"swyx":           "33521530",
		"eladgil":        "6535212",
		"pranavkhaitan":  "100836863",
		"packym":         "21306324",
		"matthgray":      "1797457675980025856",
		"simonhoiberg":   "875776212341329920",
		"shivsahni":      "309035105",
		"zaeemk":         "43564613",
		"joshua_luna":    "1717378307317288960",
		"philmohun":      "799350488428847105",
		"alexgarcia_atx": "822518487675305984",
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "threadscrape"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path, or from ConfigPath when path is empty.
// Keys missing from the file keep their defaults; a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes config to path, or to ConfigPath when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if err := c.Filters.Validate(); err != nil {
		return err
	}
	if _, err := thread.ParseStrategy(c.Threads.Strategy); err != nil {
		return fmt.Errorf("%w: threads.strategy: %v", ErrInvalid, err)
	}
	if c.Scraping.TweetsPerRequest <= 0 || c.Scraping.MaxTweetsPerAccount <= 0 {
		return fmt.Errorf("%w: scraping counts must be positive", ErrInvalid)
	}
	if c.Scraping.RequestDelayMS < 0 || c.Scraping.AccountDelayMS < 0 {
		return fmt.Errorf("%w: scraping delays must not be negative", ErrInvalid)
	}
	if len(c.Scraping.Strategies) == 0 {
		return fmt.Errorf("%w: scraping.strategies is empty", ErrInvalid)
	}
	switch c.Store.Backend {
	case "sqlite", "json", "redis":
	default:
		return fmt.Errorf("%w: store.backend %q", ErrInvalid, c.Store.Backend)
	}
	for _, f := range c.Output.Formats {
		if f != "json" && f != "csv" {
			return fmt.Errorf("%w: output format %q", ErrInvalid, f)
		}
	}
	if c.Notify.Enabled && (c.Notify.ToAddr == "" || c.Notify.FromAddr == "") {
		return fmt.Errorf("%w: notify needs from_address and to_address", ErrInvalid)
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: ocr.confidence_threshold %v out of range", ErrInvalid, c.OCR.ConfidenceThreshold)
	}
	return nil
}

// RequestDelay is the pause before each page request.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Scraping.RequestDelayMS) * time.Millisecond
}

// AccountDelay is the pause between accounts.
func (c *Config) AccountDelay() time.Duration {
	return time.Duration(c.Scraping.AccountDelayMS) * time.Millisecond
}

// ScheduleTimeout bounds one scheduled run.
func (c *Config) ScheduleTimeout() time.Duration {
	return time.Duration(c.Schedule.TimeoutMinutes) * time.Minute
}

// TweetCap is the per-account collection limit, honouring test mode.
func (c *Config) TweetCap() int {
	if c.Scraping.TestMode && c.Scraping.TestTweetsPerAccount > 0 {
		return c.Scraping.TestTweetsPerAccount
	}
	return c.Scraping.MaxTweetsPerAccount
}

// AuthFile returns the configured auth file, or the default location.
func (c *Config) AuthFile() (string, error) {
	if c.Auth.File != "" {
		return c.Auth.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "twitter_auth.json"), nil
}

// Path helpers for the dataset layout under the output directory.

func (c *Config) StageDir(stage string) string {
	return filepath.Join(c.Output.Dir, stage)
}

func (c *Config) CombinedDir() string {
	return filepath.Join(c.Output.Dir, "combined")
}

func (c *Config) ReportDir() string {
	return filepath.Join(c.Output.Dir, "reports")
}

// WantsFormat reports whether format is one of the output formats.
func (c *Config) WantsFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}
