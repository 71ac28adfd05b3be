package cli

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadscrape/internal/export"
	"github.com/ibeckermayer/threadscrape/internal/filter"
	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/thread"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

func newThreadsCmd(e *env) *cobra.Command {
	var (
		input    string
		strategy string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Reconstruct self-threads from a saved dataset",
		Long:  "Reconstruct self-threads from a tweet dataset file, or from every raw per-account dataset when --input is omitted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategy == "" {
				strategy = e.cfg.Threads.Strategy
			}
			s, err := thread.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			tweets, err := e.loadTweets(input)
			if err != nil {
				return err
			}

			results, err := thread.Reconstruct(s, tweets)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return export.WriteJSON(out, results)
			}
			for _, name := range sortedStrategies(results) {
				threads := results[name]
				fmt.Fprintf(out, "%s: %d threads\n", name, len(threads))
				for _, st := range threads {
					fmt.Fprintf(out, "  @%s %s (%d tweets) %s\n", st.Root.AuthorHandle, st.Root.ID, st.Len(), st.Root.URL)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "tweet dataset file (default: all raw datasets)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "conversation, reply_edges or both (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print threads as JSON")
	return cmd
}

func newFilterCmd(e *env) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Apply the configured filters to a saved dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fmt.Errorf("--input is required")
			}
			tweets, err := e.loadTweets(input)
			if err != nil {
				return err
			}

			flt, err := filter.New(e.cfg.Filters)
			if err != nil {
				return err
			}
			kept, counts := flt.Tally(tweets)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d of %d tweets kept\n", len(kept), len(tweets))
			for _, r := range filter.Reasons {
				if n := counts[r]; n > 0 {
					fmt.Fprintf(out, "  %s: %d\n", r, n)
				}
			}

			if output != "" {
				if err := store.SaveDataset(output, kept); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "tweet dataset file")
	cmd.Flags().StringVar(&output, "output", "", "write kept tweets to this file")
	return cmd
}

// loadTweets reads one dataset file, or concatenates every raw dataset under
// the output directory when path is empty. Processed datasets decode too.
// Records failing validation are logged and left out.
func (e *env) loadTweets(path string) ([]types.Tweet, error) {
	if path != "" {
		return e.loadValid(path)
	}

	pattern := filepath.Join(e.cfg.StageDir(string(store.StageRaw)), string(store.StageRaw)+"_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNoOutput, pattern)
	}
	sort.Strings(files)

	var all []types.Tweet
	for _, f := range files {
		tweets, err := e.loadValid(f)
		if err != nil {
			return nil, err
		}
		all = append(all, tweets...)
	}
	return all, nil
}

func (e *env) loadValid(path string) ([]types.Tweet, error) {
	tweets, rejected, err := store.LoadRecords[types.Tweet](path)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		e.logger.Warn().Err(r).Msg("skipping invalid record")
	}
	if len(rejected) > 0 {
		e.logger.Warn().Str("path", path).Int("rejected", len(rejected)).Int("kept", len(tweets)).Msg("dataset had invalid records")
	}
	return tweets, nil
}

func sortedStrategies(m map[thread.Strategy][]types.SelfThread) []thread.Strategy {
	out := make([]thread.Strategy, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
