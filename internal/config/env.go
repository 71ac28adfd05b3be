package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the environment overrides, e.g. THREADSCRAPE_LOG_LEVEL.
const EnvPrefix = "threadscrape"

// envOverrides are the settings that can be changed without editing the
// config file. Unset variables leave the file value alone.
type envOverrides struct {
	AuthFile      string `envconfig:"AUTH_FILE"`
	BearerToken   string `envconfig:"BEARER_TOKEN"`
	AccountsFile  string `envconfig:"ACCOUNTS_FILE"`
	OutputDir     string `envconfig:"OUTPUT_DIR"`
	StoreBackend  string `envconfig:"STORE_BACKEND"`
	StorePath     string `envconfig:"STORE_PATH"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogPretty     *bool  `envconfig:"LOG_PRETTY"`
	MetricsAddr   string `envconfig:"METRICS_ADDR"`
	SMTPPass      string `envconfig:"SMTP_PASS"`
	TestMode      *bool  `envconfig:"TEST_MODE"`
}

// LoadEnvFiles loads the given dotenv files that exist, later files
// overriding earlier ones. It returns the files that were loaded.
func LoadEnvFiles(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// ApplyEnv overlays THREADSCRAPE_* variables onto c.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Auth.File, env.AuthFile)
	set(&c.Auth.BearerToken, env.BearerToken)
	set(&c.AccountsFile, env.AccountsFile)
	set(&c.Output.Dir, env.OutputDir)
	set(&c.Store.Backend, env.StoreBackend)
	set(&c.Store.Path, env.StorePath)
	set(&c.Store.RedisAddr, env.RedisAddr)
	set(&c.Store.RedisPassword, env.RedisPassword)
	set(&c.Log.Level, env.LogLevel)
	set(&c.Metrics.Addr, env.MetricsAddr)
	set(&c.Notify.SMTPPass, env.SMTPPass)
	if env.LogPretty != nil {
		c.Log.Pretty = *env.LogPretty
	}
	if env.TestMode != nil {
		c.Scraping.TestMode = *env.TestMode
	}
	return nil
}
