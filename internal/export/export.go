// Package export writes the combined datasets and reconstructed threads.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

// CSVHeader is the column order of all_tweets.csv.
var CSVHeader = []string{
	"id", "text", "created_at", "url",
	"favorite_count", "retweet_count", "reply_count",
	"user_name", "user_screen_name", "image_text",
}

// WriteCSV writes tweets as CSV with a header row.
func WriteCSV(w io.Writer, tweets []types.ProcessedTweet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, t := range tweets {
		row := []string{
			t.ID,
			t.Text,
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.URL,
			strconv.Itoa(t.LikeCount),
			strconv.Itoa(t.RepostCount),
			strconv.Itoa(t.ReplyCount),
			t.AuthorName,
			t.AuthorHandle,
			t.CombinedImageText,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v indented by two spaces.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Combine concatenates the processed datasets under root, in file name order.
func Combine(root string) ([]types.ProcessedTweet, error) {
	pattern := filepath.Join(root, string(store.StageProcessed), string(store.StageProcessed)+"_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	all := []types.ProcessedTweet{}
	for _, f := range files {
		tweets, err := store.LoadDataset[[]types.ProcessedTweet](f)
		if err != nil {
			return nil, fmt.Errorf("combine %s: %w", filepath.Base(f), err)
		}
		all = append(all, tweets...)
	}
	return all, nil
}

// Exporter writes files into the combined output directory.
type Exporter struct {
	dir     string
	formats []string
}

// New creates an exporter writing formats ("json", "csv") into dir.
func New(dir string, formats []string) *Exporter {
	return &Exporter{dir: dir, formats: formats}
}

// ExportTweets writes all_tweets in every configured format and returns the
// written paths.
func (e *Exporter) ExportTweets(tweets []types.ProcessedTweet) ([]string, error) {
	if tweets == nil {
		tweets = []types.ProcessedTweet{}
	}
	var paths []string
	for _, format := range e.formats {
		var buf bytes.Buffer
		var err error
		switch format {
		case "json":
			err = WriteJSON(&buf, tweets)
		case "csv":
			err = WriteCSV(&buf, tweets)
		default:
			return paths, fmt.Errorf("unknown export format %q", format)
		}
		if err != nil {
			return paths, fmt.Errorf("encode %s: %w", format, err)
		}

		path := filepath.Join(e.dir, "all_tweets."+format)
		if err := store.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ThreadsPath is where ExportThreads writes the threads of strategy.
func (e *Exporter) ThreadsPath(strategy string) string {
	return filepath.Join(e.dir, "threads_"+strategy+".json")
}

// ExportThreads writes the threads found by one strategy.
func (e *Exporter) ExportThreads(strategy string, threads []types.SelfThread) (string, error) {
	if threads == nil {
		threads = []types.SelfThread{}
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, threads); err != nil {
		return "", err
	}
	path := e.ThreadsPath(strategy)
	return path, store.WriteFileAtomic(path, buf.Bytes(), 0644)
}
