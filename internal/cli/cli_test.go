package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/handles"
	"github.com/ibeckermayer/threadscrape/internal/report"
	"github.com/ibeckermayer/threadscrape/internal/store"
	"github.com/ibeckermayer/threadscrape/internal/types"
)

type workspace struct {
	dir     string
	config  string
	outDir  string
	kvPath  string
	opened  []string
	stderr  bytes.Buffer
	envFile string
}

func newWorkspace(t *testing.T, extra string) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:     dir,
		config:  filepath.Join(dir, "config.toml"),
		outDir:  filepath.Join(dir, "data"),
		kvPath:  filepath.Join(dir, "state.json"),
		envFile: filepath.Join(dir, "missing.env"),
	}
	content := fmt.Sprintf(`
[output]
dir = %q

[store]
backend = "json"
json_path = %q
%s`, w.outDir, w.kvPath, extra)
	if err := os.WriteFile(w.config, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return w
}

func (w *workspace) execute(args ...string) (string, error) {
	e := &env{open: func(path string) error {
		w.opened = append(w.opened, path)
		return nil
	}}
	cmd := newRootCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&w.stderr)
	cmd.SetArgs(append([]string{"--config", w.config, "--env-file", w.envFile}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tweet(id, parent string, created time.Time, likes int) types.Tweet {
	t := types.Tweet{
		ID:                id,
		AuthorID:          "100",
		AuthorHandle:      "swyx",
		CreatedAt:         created,
		Text:              "tweet " + id,
		ConversationID:    "1",
		IsReply:           parent != "",
		InReplyToStatusID: parent,
		LikeCount:         likes,
		Language:          "en",
		URL:               "https://twitter.com/swyx/status/" + id,
	}
	if parent != "" {
		t.InReplyToUserID = t.AuthorID
	}
	return t
}

func TestThreadsCommand(t *testing.T) {
	w := newWorkspace(t, "")
	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	batch := []types.Tweet{
		tweet("1", "", base, 90),
		tweet("2", "1", base.Add(time.Minute), 3),
		tweet("3", "2", base.Add(2*time.Minute), 1),
	}
	if err := store.SaveDataset(store.DatasetPath(w.outDir, store.StageRaw, "swyx"), batch); err != nil {
		t.Fatal(err)
	}

	out, err := w.execute("threads", "--strategy", "reply_edges")
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if !strings.Contains(out, "reply_edges: 1 threads") || !strings.Contains(out, "@swyx 1 (3 tweets)") {
		t.Errorf("output: %s", out)
	}

	out, err = w.execute("threads", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string][]types.SelfThread
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	for _, s := range []string{"conversation", "reply_edges"} {
		if len(got[s]) != 1 || len(got[s][0].Replies) != 2 {
			t.Errorf("%s: got %+v", s, got[s])
		}
	}

	if _, err := w.execute("threads", "--strategy", "sideways"); err == nil {
		t.Errorf("expected error for unknown strategy")
	}
}

func TestThreadsCommand_SkipsInvalidRecords(t *testing.T) {
	w := newWorkspace(t, "")
	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	parentOnRoot := tweet("2", "1", base.Add(time.Minute), 3)
	parentOnRoot.IsReply = false
	orphanReply := tweet("3", "", base.Add(2*time.Minute), 1)
	orphanReply.IsReply = true
	batch := []types.Tweet{tweet("1", "", base, 90), parentOnRoot, orphanReply}
	input := filepath.Join(w.dir, "mixed.json")
	if err := store.SaveDataset(input, batch); err != nil {
		t.Fatal(err)
	}

	out, err := w.execute("threads", "--strategy", "conversation", "--input", input)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if !strings.Contains(out, "conversation: 0 threads") {
		t.Errorf("invalid records should not join a thread: %s", out)
	}
	if !strings.Contains(w.stderr.String(), `"rejected":2`) {
		t.Errorf("expected rejected count on stderr: %s", w.stderr.String())
	}

	out, err = w.execute("filter", "--input", input)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "of 1 tweets kept") {
		t.Errorf("filter should only see the valid record: %s", out)
	}
}

func TestThreadsCommand_NoDatasets(t *testing.T) {
	w := newWorkspace(t, "")
	if _, err := w.execute("threads"); !errors.Is(err, store.ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestFilterCommand(t *testing.T) {
	w := newWorkspace(t, "")
	recent := time.Now().Add(-24 * time.Hour)
	reply := tweet("2", "1", recent.Add(time.Minute), 120)
	reply.InReplyToUserID = "999"
	input := filepath.Join(w.dir, "in.json")
	if err := store.SaveDataset(input, []types.Tweet{tweet("1", "", recent, 120), reply}); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(w.dir, "out.json")

	out, err := w.execute("filter", "--input", input, "--output", output)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	for _, want := range []string{"1 of 2 tweets kept", "passed: 1", "reply: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}

	kept, err := store.LoadDataset[[]types.Tweet](output)
	if err != nil || len(kept) != 1 || kept[0].ID != "1" {
		t.Errorf("kept: %+v (%v)", kept, err)
	}

	if _, err := w.execute("filter"); err == nil {
		t.Errorf("expected error without --input")
	}
}

func TestProgressCommands(t *testing.T) {
	w := newWorkspace(t, "")

	out, err := w.execute("progress", "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	runID := strings.TrimSpace(strings.TrimPrefix(out, "progress reset, new run "))

	out, err = w.execute("progress", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var st struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if st.RunID == "" || st.RunID != runID {
		t.Errorf("run id: show %q, reset %q", st.RunID, runID)
	}
}

func TestHandlesCommands(t *testing.T) {
	w := newWorkspace(t, `
[handles]
someone = "777"
`)
	kv, err := store.OpenJSONFile(w.kvPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := handles.NewResolver(nil, kv, zerolog.Nop()).Remember(context.Background(), "naval", "745273"); err != nil {
		t.Fatal(err)
	}
	kv.Close()

	out, err := w.execute("handles", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "someone\t777\tconfig") || !strings.Contains(out, "naval\t-\tcache") {
		t.Errorf("list output: %s", out)
	}

	out, err = w.execute("handles", "clear")
	if err != nil || !strings.Contains(out, "cleared 1 cached handles") {
		t.Errorf("clear: %q (%v)", out, err)
	}
	if out, _ := w.execute("handles", "list"); strings.Contains(out, "naval") {
		t.Errorf("cache not cleared: %s", out)
	}
}

func TestOpenCommand(t *testing.T) {
	w := newWorkspace(t, "")

	if _, err := w.execute("open", "report"); !errors.Is(err, store.ErrNoOutput) {
		t.Errorf("expected ErrNoOutput before any report, got %v", err)
	}

	b, err := report.New(0)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := b.Build(nil, report.Stats{}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	path, err := rep.Save(filepath.Join(w.outDir, "reports"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := w.execute("open", "report"); err != nil {
		t.Fatalf("open report: %v", err)
	}
	if _, err := w.execute("open", "config"); err != nil {
		t.Fatalf("open config: %v", err)
	}
	if len(w.opened) != 2 || w.opened[0] != path || w.opened[1] != w.config {
		t.Errorf("opened: %v", w.opened)
	}

	if _, err := w.execute("open", "desktop"); err == nil {
		t.Errorf("expected error for unknown target")
	}
}

func TestInvalidConfig(t *testing.T) {
	w := newWorkspace(t, `
[threads]
strategy = "sideways"
`)
	if _, err := w.execute("progress", "show"); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLogLevelFlag(t *testing.T) {
	w := newWorkspace(t, "")
	if _, err := w.execute("handles", "clear"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(w.stderr.String(), `"message":"handle cache cleared"`) {
		t.Errorf("expected resolver log line on stderr: %s", w.stderr.String())
	}

	w.stderr.Reset()
	if _, err := w.execute("--log-level", "error", "handles", "clear"); err != nil {
		t.Fatal(err)
	}
	if w.stderr.Len() != 0 {
		t.Errorf("info lines should be suppressed: %s", w.stderr.String())
	}
}
