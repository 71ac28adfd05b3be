package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/thread"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

func selfThread(handle string, likes int, texts ...string) types.SelfThread {
	st := types.SelfThread{Root: types.Tweet{
		ID: handle + "-0", AuthorHandle: handle, AuthorName: strings.ToUpper(handle),
		Text: texts[0], LikeCount: likes, URL: "https://twitter.com/" + handle + "/0",
	}}
	for _, txt := range texts[1:] {
		st.Replies = append(st.Replies, types.Tweet{AuthorHandle: handle, Text: txt, LikeCount: 1})
	}
	return st
}

func TestBuild(t *testing.T) {
	b, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, time.May, 6, 9, 0, 0, 0, time.UTC)

	rep, err := b.Build(map[thread.Strategy][]types.SelfThread{
		thread.StrategyReplyEdges: {
			selfThread("eladgil", 5, "low", "x"),
			selfThread("swyx", 90, "<b>launch</b> day", "part two"),
		},
		thread.StrategyConversation: {},
	}, Stats{Accounts: 2, Tweets: 40}, now)
	if err != nil {
		t.Fatal(err)
	}

	html := string(rep.HTML)
	for _, want := range []string{
		"&lt;b&gt;launch&lt;/b&gt; day",
		"part two",
		"reply_edges · 2 threads",
		"conversation · 0 threads",
		"2 tweets · 91 likes",
		"40 tweets from 2 accounts",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "eladgil") {
		t.Errorf("threads beyond the limit should be dropped")
	}
	if strings.Index(html, "conversation ·") > strings.Index(html, "reply_edges ·") {
		t.Errorf("sections should be sorted by strategy name")
	}

	if !strings.Contains(rep.PlainText, "1. @swyx (2 tweets, 91 likes): <b>launch</b> day") {
		t.Errorf("plain text: %s", rep.PlainText)
	}
}

func TestSaveAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	if _, err := LatestReport(dir); !errors.Is(err, store.ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}

	b, _ := New(0)
	base := time.Date(2025, time.May, 6, 9, 0, 0, 0, time.UTC)
	var last string
	for i := 0; i < 2; i++ {
		rep, err := b.Build(nil, Stats{}, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if last, err = rep.Save(dir); err != nil {
			t.Fatal(err)
		}
	}

	got, err := LatestReport(dir)
	if err != nil || got != last {
		t.Errorf("LatestReport: got %s (%v), want %s", got, err, last)
	}
	if data, _ := os.ReadFile(got); !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Errorf("saved report is not html")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 8); got != "héllo..." {
		t.Errorf("truncate: got %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Errorf("truncate: got %q", got)
	}
}
