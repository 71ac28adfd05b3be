package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadscrape/internal/metrics"
	"github.com/ibeckermayer/threadscrape/internal/pipeline"
	"github.com/ibeckermayer/threadscrape/internal/scheduler"
)

const scrapeJob = "scrape"

func newRunCmd(e *env) *cobra.Command {
	var (
		reset    bool
		accounts []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the roster once",
		Long:  "Scrape every account in the roster, resuming saved progress unless --reset is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			roster, err := e.roster(accounts)
			if err != nil {
				return err
			}

			s, err := e.openStores(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := e.buildPipeline(s)
			if err != nil {
				return err
			}

			metrics.MustRegister(prometheus.DefaultRegisterer)
			res, err := p.Run(ctx, roster, pipeline.Options{Reset: reset})
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			if path := e.cfg.Metrics.Textfile; path != "" {
				if werr := metrics.WriteTextfile(path, prometheus.DefaultGatherer); werr != nil {
					e.logger.Warn().Err(werr).Str("path", path).Msg("failed to write metrics textfile")
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "discard saved progress and start a new run")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "scrape only this handle, repeatable")
	return cmd
}

func newScheduleCmd(e *env) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Scrape the roster on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			roster, err := e.roster(nil)
			if err != nil {
				return err
			}

			s, err := e.openStores(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := e.buildPipeline(s)
			if err != nil {
				return err
			}

			metrics.MustRegister(prometheus.DefaultRegisterer)
			if addr := e.cfg.Metrics.Addr; addr != "" {
				metrics.StartServer(ctx, e.logger, addr, prometheus.DefaultGatherer)
			}

			sched, err := scheduler.New(e.cfg.Schedule.Timezone, e.cfg.ScheduleTimeout(), e.logger)
			if err != nil {
				return err
			}

			// Every tick is a fresh run; progress only carries over within one.
			job := func(ctx context.Context) error {
				_, err := p.Run(ctx, roster, pipeline.Options{Reset: true})
				return err
			}
			if err := sched.AddJob(scrapeJob, e.cfg.Schedule.Cron, job); err != nil {
				return err
			}

			if now {
				_ = sched.RunNow(ctx, scrapeJob, job)
			}

			sched.Start()
			for _, j := range sched.ListJobs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s next run %s\n", j.Name, j.NextRun.Format("2006-01-02 15:04 MST"))
			}

			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "run once immediately before waiting for the schedule")
	return cmd
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "run %s: %d completed, %d skipped, %d failed\n",
		res.RunID, len(res.Completed), len(res.Skipped), len(res.Failed))
	fmt.Fprintf(w, "tweets: %d collected, %d kept\n", res.Collected, res.Kept)

	failed := make([]string, 0, len(res.Failed))
	for h := range res.Failed {
		failed = append(failed, h)
	}
	sort.Strings(failed)
	for _, h := range failed {
		fmt.Fprintf(w, "  failed @%s: %v\n", h, res.Failed[h])
	}

	for _, s := range sortedStrategies(res.Threads) {
		fmt.Fprintf(w, "threads (%s): %d\n", s, len(res.Threads[s]))
	}
	for _, path := range res.Exports {
		fmt.Fprintf(w, "wrote %s\n", path)
	}
	if res.ReportPath != "" {
		fmt.Fprintf(w, "report %s\n", res.ReportPath)
	}
}
