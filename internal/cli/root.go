// Package cli is the threadscrape command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/logging"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	pretty     bool
}

// env is the state shared by every command once the persistent flags are
// parsed.
type env struct {
	flags  globalFlags
	cfg    *config.Config
	logger zerolog.Logger

	// open hands a path to the desktop; replaced in tests.
	open func(path string) error
}

// NewRootCmd returns the root command for threadscrape.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&env{open: browser.OpenFile})
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "threadscrape",
		Short:         "Scrape account timelines and reconstruct self-threads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.flags.configPath, "config", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringArrayVar(&e.flags.envFiles, "env-file", nil, "dotenv file to load, repeatable (default .env)")
	rootCmd.PersistentFlags().StringVar(&e.flags.logLevel, "log-level", "", "log level override")
	rootCmd.PersistentFlags().BoolVar(&e.flags.pretty, "pretty", false, "human-readable logs")

	rootCmd.AddCommand(newRunCmd(e))
	rootCmd.AddCommand(newScheduleCmd(e))
	rootCmd.AddCommand(newThreadsCmd(e))
	rootCmd.AddCommand(newFilterCmd(e))
	rootCmd.AddCommand(newProgressCmd(e))
	rootCmd.AddCommand(newAuthCmd(e))
	rootCmd.AddCommand(newHandlesCmd(e))
	rootCmd.AddCommand(newOpenCmd(e))

	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// load resolves configuration in order: dotenv files, config file,
// environment, then flags.
func (e *env) load(cmd *cobra.Command) error {
	if _, err := config.LoadEnvFiles(e.flags.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load(e.flags.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = e.flags.logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = e.flags.pretty
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logging.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	return nil
}

// roster loads the accounts file, narrowed to handles when any are given.
func (e *env) roster(handles []string) ([]config.Account, error) {
	accounts, err := config.LoadAccounts(e.cfg.AccountsFile)
	if err != nil {
		return nil, err
	}
	return config.SelectAccounts(accounts, handles), nil
}
