// Package report renders reconstructed self-threads as an HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/thread"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

const filePrefix = "threads"

// Builder renders thread reports.
type Builder struct {
	maxThreads int
	template   *template.Template
}

// New creates a builder listing at most maxThreads threads per strategy.
// Zero means no limit.
func New(maxThreads int) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxThreads: maxThreads,
		template:   tmpl,
	}, nil
}

// Report is a rendered report.
type Report struct {
	HTML      []byte
	PlainText string
	CreatedAt time.Time
}

// Stats summarizes the run the threads came from.
type Stats struct {
	Accounts int
	Tweets   int
}

type reportData struct {
	Title    string
	Date     string
	Sections []sectionData
	Stats    Stats
}

type sectionData struct {
	Strategy string
	Total    int
	Threads  []threadData
}

type threadData struct {
	AuthorHandle string
	AuthorName   string
	Length       int
	Likes        int
	Reposts      int
	Replies      int
	URL          string
	Tweets       []string
}

// Build renders the threads found by each strategy. Threads are listed by
// total likes across the thread, highest first.
func (b *Builder) Build(results map[thread.Strategy][]types.SelfThread, stats Stats, now time.Time) (*Report, error) {
	strategies := make([]string, 0, len(results))
	for s := range results {
		strategies = append(strategies, string(s))
	}
	sort.Strings(strategies)

	data := reportData{
		Title: "Self-threads",
		Date:  now.Format("Monday, January 2 2006 15:04"),
		Stats: stats,
	}
	for _, s := range strategies {
		threads := append([]types.SelfThread(nil), results[thread.Strategy(s)]...)
		sort.SliceStable(threads, func(i, j int) bool {
			return totalLikes(threads[i]) > totalLikes(threads[j])
		})

		sec := sectionData{Strategy: s, Total: len(threads)}
		if b.maxThreads > 0 && len(threads) > b.maxThreads {
			threads = threads[:b.maxThreads]
		}
		for _, st := range threads {
			sec.Threads = append(sec.Threads, toThreadData(st))
		}
		data.Sections = append(data.Sections, sec)
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Report{
		HTML:      htmlBuf.Bytes(),
		PlainText: buildPlainText(data),
		CreatedAt: now,
	}, nil
}

// Save writes the HTML report to dir under a timestamped name.
func (r *Report) Save(dir string) (string, error) {
	return store.SaveTimestamped(dir, filePrefix, ".html", r.HTML, r.CreatedAt)
}

// LatestReport returns the newest report in dir.
func LatestReport(dir string) (string, error) {
	return store.LatestFile(dir, ".html")
}

func toThreadData(st types.SelfThread) threadData {
	td := threadData{
		AuthorHandle: st.Root.AuthorHandle,
		AuthorName:   st.Root.AuthorName,
		Length:       st.Len(),
		URL:          st.Root.URL,
	}
	for _, t := range append([]types.Tweet{st.Root}, st.Replies...) {
		td.Likes += t.LikeCount
		td.Reposts += t.RepostCount
		td.Replies += t.ReplyCount
		td.Tweets = append(td.Tweets, truncate(t.Text, 280))
	}
	return td
}

func totalLikes(st types.SelfThread) int {
	n := st.Root.LikeCount
	for _, r := range st.Replies {
		n += r.LikeCount
	}
	return n
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data reportData) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Date)

	for _, sec := range data.Sections {
		fmt.Fprintf(&buf, "== %s (%d threads) ==\n", sec.Strategy, sec.Total)
		for i, t := range sec.Threads {
			first := ""
			if len(t.Tweets) > 0 {
				first = strings.ReplaceAll(truncate(t.Tweets[0], 80), "\n", " ")
			}
			fmt.Fprintf(&buf, "%d. @%s (%d tweets, %d likes): %s\n", i+1, t.AuthorHandle, t.Length, t.Likes, first)
			fmt.Fprintf(&buf, "   %s\n", t.URL)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 680px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #1da1f2; margin-bottom: 5px; }
        h2 { color: #333; border-bottom: 2px solid #e8f5fd; padding-bottom: 4px; }
        .date { color: #666; margin-bottom: 20px; }
        .thread { border-bottom: 1px solid #eee; padding: 15px 0; }
        .thread:last-child { border-bottom: none; }
        .author { font-weight: bold; color: #333; }
        .handle { color: #666; }
        ol.tweets { margin: 10px 0; padding-left: 20px; line-height: 1.4; }
        ol.tweets li { margin-bottom: 6px; white-space: pre-wrap; }
        .metrics { color: #666; font-size: 13px; }
        .link { color: #1da1f2; text-decoration: none; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>

        {{range .Sections}}
        <h2>{{.Strategy}} · {{.Total}} threads</h2>
        {{range .Threads}}
        <div class="thread">
            <div class="author">{{.AuthorName}} <span class="handle">@{{.AuthorHandle}}</span></div>
            <ol class="tweets">
                {{range .Tweets}}<li>{{.}}</li>{{end}}
            </ol>
            <div class="metrics">{{.Length}} tweets · {{.Likes}} likes · {{.Reposts}} reposts · {{.Replies}} replies</div>
            <a href="{{.URL}}" class="link">View on X →</a>
        </div>
        {{end}}
        {{end}}

        <div class="footer">
            {{.Stats.Tweets}} tweets from {{.Stats.Accounts}} accounts · Generated by threadscrape
        </div>
    </div>
</body>
</html>`
