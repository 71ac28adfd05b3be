// Command tsdev is a dev CLI for threadscrape maintenance and debugging tasks.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/fetch"
	"github.com/ibeckermayer/threadscrape/internal/logging"
)

func main() {
	logger := logging.NewLogger(os.Stderr, "info", true)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "bot-test":
		if err := runBotTest(logger); err != nil {
			logger.Fatal().Err(err).Msg("bot test failed")
		}
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: tsdev open <config|auth|images>")
			os.Exit(1)
		}
		if err := runOpen(os.Args[2]); err != nil {
			logger.Fatal().Err(err).Msg("open failed")
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tsdev <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  bot-test      Open bot.sannysoft.com with the browser fetch options")
	fmt.Println("  open config   Open the default config file")
	fmt.Println("  open auth     Open the directory holding the auth file")
	fmt.Println("  open images   Open the OCR scratch directory")
}

// runBotTest shows the fingerprint the browser fetch strategy presents.
func runBotTest(logger zerolog.Logger) error {
	logger.Info().Msg("opening bot.sannysoft.com with browser fetch options")

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), fetch.AllocatorOptions(false)...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx,
		chromedp.Navigate("https://bot.sannysoft.com"),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	fmt.Println("Press Enter to close the browser...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	return nil
}

func runOpen(target string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	var path string
	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "auth":
		path, err = cfg.AuthFile()
		path = filepath.Dir(path)
	case "images":
		path, err = filepath.Abs(cfg.OCR.ImagesDir)
		if err == nil {
			err = os.MkdirAll(path, 0755)
		}
	default:
		return fmt.Errorf("unknown target: %s", target)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Opening: %s\n", path)
	return browser.OpenFile(path)
}
