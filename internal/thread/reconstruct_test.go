package thread

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func root(id, author, conv string, created time.Time) types.Tweet {
	return types.Tweet{ID: id, AuthorID: author, ConversationID: conv, CreatedAt: created}
}

func reply(id, author, conv, parent, parentAuthor string, created time.Time) types.Tweet {
	return types.Tweet{
		ID:                id,
		AuthorID:          author,
		ConversationID:    conv,
		CreatedAt:         created,
		IsReply:           true,
		InReplyToStatusID: parent,
		InReplyToUserID:   parentAuthor,
	}
}

func ids(tweets []types.Tweet) []string {
	out := make([]string, len(tweets))
	for i, t := range tweets {
		out[i] = t.ID
	}
	return out
}

// chain is A <- B <- C, all by U1 in C1.
func chain() []types.Tweet {
	return []types.Tweet{
		root("A", "U1", "C1", at(0)),
		reply("B", "U1", "C1", "A", "U1", at(1)),
		reply("C", "U1", "C1", "B", "U1", at(2)),
	}
}

func TestByConversation_SingleAuthorChain(t *testing.T) {
	threads := ByConversation(chain())

	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if threads[0].Root.ID != "A" {
		t.Errorf("root: got %s, want A", threads[0].Root.ID)
	}
	if got := ids(threads[0].Replies); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("replies: got %v, want [B C]", got)
	}
}

func TestByReplyEdges_TransitiveChain(t *testing.T) {
	threads := ByReplyEdges(chain())

	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if threads[0].Root.ID != "A" {
		t.Errorf("root: got %s, want A", threads[0].Root.ID)
	}
	if got := ids(threads[0].Replies); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("replies: got %v, want [B C]", got)
	}
}

func TestByConversation_MixedAuthorsDiscarded(t *testing.T) {
	batch := chain()
	batch[2].AuthorID = "U2"

	if threads := ByConversation(batch); len(threads) != 0 {
		t.Errorf("expected no threads, got %d", len(threads))
	}
}

func TestByReplyEdges_StopsAtOtherAuthor(t *testing.T) {
	batch := chain()
	batch[2].AuthorID = "U2"
	// U1 answering U2 further down is not part of the self-thread.
	batch = append(batch, reply("D", "U1", "C1", "C", "U2", at(3)))

	threads := ByReplyEdges(batch)
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if got := ids(threads[0].Replies); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("replies: got %v, want [B]", got)
	}
}

func TestByReplyEdges_ForeignDirectReplyDisqualifies(t *testing.T) {
	batch := []types.Tweet{
		root("A", "U1", "C1", at(0)),
		reply("B", "U1", "C1", "A", "U1", at(1)),
		reply("X", "U2", "C1", "A", "U1", at(2)),
	}
	if threads := ByReplyEdges(batch); len(threads) != 0 {
		t.Errorf("expected no threads, got %d", len(threads))
	}
}

func TestByReplyEdges_ExcludesOtherConversation(t *testing.T) {
	batch := []types.Tweet{
		root("A", "U1", "C1", at(0)),
		reply("B", "U1", "C1", "A", "U1", at(1)),
		reply("C", "U1", "C9", "B", "U1", at(2)),
		reply("D", "U1", "", "B", "U1", at(3)),
	}
	threads := ByReplyEdges(batch)
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if got := ids(threads[0].Replies); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("replies: got %v, want [B D]", got)
	}
}

func TestByReplyEdges_Depth(t *testing.T) {
	batch := []types.Tweet{root("0", "U1", "0", at(0))}
	for i := 1; i <= 6; i++ {
		id := string(rune('0' + i))
		parent := string(rune('0' + i - 1))
		batch = append(batch, reply(id, "U1", "0", parent, "U1", at(i)))
	}

	threads := ByReplyEdges(batch)
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if got := len(threads[0].Replies); got != 6 {
		t.Errorf("expected all 6 hops, got %d", got)
	}
}

func TestReplies_TieBreakByNumericID(t *testing.T) {
	batch := []types.Tweet{
		root("1", "U1", "C1", at(0)),
		reply("100", "U1", "C1", "1", "U1", at(5)),
		reply("99", "U1", "C1", "1", "U1", at(5)),
	}

	for name, fn := range map[string]func([]types.Tweet) []types.SelfThread{
		"conversation": ByConversation,
		"reply_edges":  ByReplyEdges,
	} {
		t.Run(name, func(t *testing.T) {
			threads := fn(batch)
			if len(threads) != 1 {
				t.Fatalf("expected 1 thread, got %d", len(threads))
			}
			if got := ids(threads[0].Replies); !reflect.DeepEqual(got, []string{"99", "100"}) {
				t.Errorf("replies: got %v, want [99 100]", got)
			}
		})
	}
}

func TestByConversation_EmptyAuthorNeverGroups(t *testing.T) {
	batch := []types.Tweet{
		root("A", "", "C1", at(0)),
		reply("B", "", "C1", "A", "", at(1)),
	}
	if threads := ByConversation(batch); len(threads) != 0 {
		t.Errorf("conversation: expected no threads, got %d", len(threads))
	}
	if threads := ByReplyEdges(batch); len(threads) != 0 {
		t.Errorf("reply_edges: expected no threads, got %d", len(threads))
	}
}

func TestByConversation_AllRepliesUsesEarliest(t *testing.T) {
	batch := []types.Tweet{
		reply("C", "U1", "C1", "B", "U1", at(2)),
		reply("B", "U1", "C1", "A", "U1", at(1)),
	}
	threads := ByConversation(batch)
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if threads[0].Root.ID != "B" {
		t.Errorf("root: got %s, want B", threads[0].Root.ID)
	}
}

func TestByConversation_SingletonNeverThread(t *testing.T) {
	batch := []types.Tweet{root("A", "U1", "", at(0)), root("B", "U1", "", at(1))}
	if threads := ByConversation(batch); len(threads) != 0 {
		t.Errorf("expected no threads, got %d", len(threads))
	}
}

// mixedBatch has several conversations and authors, with some noise, in a
// deliberately shuffled order.
func mixedBatch() []types.Tweet {
	return []types.Tweet{
		reply("12", "U2", "10", "11", "U2", at(12)),
		root("20", "U1", "20", at(20)),
		reply("3", "U1", "1", "2", "U1", at(3)),
		root("1", "U1", "1", at(1)),
		reply("21", "U3", "20", "20", "U1", at(21)),
		reply("2", "U1", "1", "1", "U1", at(2)),
		root("10", "U2", "10", at(10)),
		reply("11", "U2", "10", "10", "U2", at(11)),
		root("30", "U4", "", at(30)),
		reply("2", "U1", "1", "1", "U1", at(2)),
	}
}

func TestStrategies_Properties(t *testing.T) {
	for name, fn := range map[string]func([]types.Tweet) []types.SelfThread{
		"conversation": ByConversation,
		"reply_edges":  ByReplyEdges,
	} {
		t.Run(name, func(t *testing.T) {
			threads := fn(mixedBatch())
			if len(threads) != 2 {
				t.Fatalf("expected 2 threads, got %d", len(threads))
			}
			if threads[0].Root.ID != "1" || threads[1].Root.ID != "10" {
				t.Errorf("threads not ordered by root: %s, %s", threads[0].Root.ID, threads[1].Root.ID)
			}

			seen := map[string]bool{}
			for _, st := range threads {
				if err := Validate(st); err != nil {
					t.Errorf("thread %s: %v", st.Root.ID, err)
				}
				for _, m := range append([]types.Tweet{st.Root}, st.Replies...) {
					if seen[m.ID] {
						t.Errorf("tweet %s appears in more than one thread", m.ID)
					}
					seen[m.ID] = true
				}
			}

			again := fn(mixedBatch())
			if !reflect.DeepEqual(threads, again) {
				t.Errorf("repeated invocation differs")
			}
		})
	}
}

func TestGroupByConversation(t *testing.T) {
	groups := GroupByConversation(mixedBatch())

	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d", len(groups))
	}
	if got := ids(groups["1"]); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("group 1: got %v", got)
	}
	if got := ids(groups["30"]); !reflect.DeepEqual(got, []string{"30"}) {
		t.Errorf("singleton group keyed by own id: got %v", got)
	}

	total := 0
	for _, members := range groups {
		total += len(members)
	}
	if total != 9 {
		t.Errorf("duplicates should collapse: got %d members", total)
	}
}

func TestReconstruct(t *testing.T) {
	out, err := Reconstruct(StrategyBoth, chain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[StrategyConversation]) != 1 || len(out[StrategyReplyEdges]) != 1 {
		t.Errorf("expected one thread per strategy, got %v", out)
	}

	if _, err := Reconstruct("merged", chain()); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	if _, err := ParseStrategy("reply_edges"); err != nil {
		t.Errorf("ParseStrategy: %v", err)
	}
}

func TestSelectRoot(t *testing.T) {
	if _, err := selectRoot(nil); !errors.Is(err, ErrAmbiguousRoot) {
		t.Errorf("empty: expected ErrAmbiguousRoot, got %v", err)
	}

	dup := root("A", "U1", "C1", at(0))
	if _, err := selectRoot([]types.Tweet{dup, dup}); !errors.Is(err, ErrAmbiguousRoot) {
		t.Errorf("duplicate: expected ErrAmbiguousRoot, got %v", err)
	}

	got, err := selectRoot([]types.Tweet{root("B", "U1", "C1", at(0)), root("A", "U1", "C1", at(0))})
	if err != nil || got.ID != "A" {
		t.Errorf("expected A, got %s (%v)", got.ID, err)
	}
}

func TestValidate(t *testing.T) {
	good := types.SelfThread{Root: chain()[0], Replies: chain()[1:]}

	tests := []struct {
		name    string
		mutate  func(st *types.SelfThread)
		wantErr error
	}{
		{"valid", func(st *types.SelfThread) {}, nil},
		{"other author", func(st *types.SelfThread) { st.Replies[1].AuthorID = "U2" }, ErrInvalidThread},
		{"unordered", func(st *types.SelfThread) { st.Replies[0], st.Replies[1] = st.Replies[1], st.Replies[0] }, ErrInvalidThread},
		{"root repeated", func(st *types.SelfThread) { st.Replies[0] = st.Root }, ErrAmbiguousRoot},
		{"reply root with non-reply member", func(st *types.SelfThread) {
			st.Root, st.Replies[0] = st.Replies[0], st.Root
		}, ErrAmbiguousRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := types.SelfThread{Root: good.Root, Replies: append([]types.Tweet(nil), good.Replies...)}
			tt.mutate(&st)
			err := Validate(st)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"99", "100", -1},
		{"100", "99", 1},
		{"1834", "1834", 0},
		{"007", "7", 0},
		{"abc", "abd", -1},
		{"123", "abc", -1},
	}
	for _, tt := range tests {
		if got := compareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("compareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
