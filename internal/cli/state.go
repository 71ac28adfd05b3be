package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/export"
	"github.com/ibeckermayer/threadscrape/internal/progress"
	"github.com/ibeckermayer/threadscrape/internal/report"
)

func newProgressCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect or reset saved run progress",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved run state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openStores(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := progress.NewTracker(s.kv, e.logger).Load(cmd.Context())
			if err != nil {
				return err
			}
			return export.WriteJSON(cmd.OutOrStdout(), st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard saved progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openStores(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := progress.NewTracker(s.kv, e.logger).Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "progress reset, new run %s\n", st.RunID)
			return nil
		},
	})

	return cmd
}

func newAuthCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the browser session used for API requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the auth file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := e.authManager()
			if err != nil {
				return err
			}
			s, err := mgr.Session()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auth ok: %s, updated %s, expires in %s\n",
				mgr.Path(),
				s.UpdatedAt().Format(time.RFC3339),
				s.Remaining(time.Now()).Round(time.Minute))
			return nil
		},
	})

	return cmd
}

func newHandlesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handles",
		Short: "Inspect the handle to user id cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured and cached handles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openStores(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			cached, err := e.resolver(s.kv).Cached(cmd.Context())
			if err != nil {
				return err
			}
			configured := make([]string, 0, len(e.cfg.Handles))
			for h := range e.cfg.Handles {
				configured = append(configured, h)
			}
			sort.Strings(configured)
			sort.Strings(cached)

			out := cmd.OutOrStdout()
			for _, h := range configured {
				fmt.Fprintf(out, "%s\t%s\tconfig\n", h, e.cfg.Handles[h])
			}
			for _, h := range cached {
				fmt.Fprintf(out, "%s\t-\tcache\n", h)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the handle cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openStores(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := e.resolver(s.kv).Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cached handles\n", n)
			return nil
		},
	})

	return cmd
}

func newOpenCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|output|report>",
		Short:     "Open the config file, output directory or latest report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "output", "report"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			var err error

			switch args[0] {
			case "config":
				path = e.flags.configPath
				if path == "" {
					path, err = config.ConfigPath()
				}
			case "output":
				path, err = filepath.Abs(e.cfg.Output.Dir)
			case "report":
				path, err = report.LatestReport(e.cfg.ReportDir())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "opening %s\n", path)
			return e.open(path)
		},
	}
}
