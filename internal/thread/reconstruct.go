package thread

import (
	"errors"
	"fmt"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

var (
	// ErrAmbiguousRoot means no single root could be chosen for a thread.
	// The strategies always pick a unique root, so seeing this from them is a bug.
	ErrAmbiguousRoot = errors.New("ambiguous thread root")
	// ErrInvalidThread is returned by Validate for threads that break the
	// author or ordering rules.
	ErrInvalidThread = errors.New("invalid self-thread")
	// ErrUnknownStrategy is returned for an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("unknown thread strategy")
)

// Strategy names a reconstruction approach.
type Strategy string

const (
	StrategyConversation Strategy = "conversation"
	StrategyReplyEdges   Strategy = "reply_edges"
	StrategyBoth         Strategy = "both"
)

// ParseStrategy validates a strategy name from config or flags.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConversation, StrategyReplyEdges, StrategyBoth:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Reconstruct runs the requested strategy, or both, against the batch. Results
// are keyed by the concrete strategy that produced them; "both" never merges.
func Reconstruct(s Strategy, batch []types.Tweet) (map[Strategy][]types.SelfThread, error) {
	out := make(map[Strategy][]types.SelfThread, 2)
	switch s {
	case StrategyConversation:
		out[StrategyConversation] = ByConversation(batch)
	case StrategyReplyEdges:
		out[StrategyReplyEdges] = ByReplyEdges(batch)
	case StrategyBoth:
		out[StrategyConversation] = ByConversation(batch)
		out[StrategyReplyEdges] = ByReplyEdges(batch)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	return out, nil
}

// ByConversation treats every single-author conversation with at least two
// tweets as a self-thread.
func ByConversation(batch []types.Tweet) []types.SelfThread {
	var threads []types.SelfThread

	for _, members := range GroupByConversation(batch) {
		if len(members) < 2 || !singleAuthor(members) {
			continue
		}

		candidates := nonReplies(members)
		if len(candidates) == 0 {
			// Root is outside the batch; the earliest reply stands in for it.
			candidates = members
		}
		root, err := selectRoot(candidates)
		if err != nil {
			continue
		}

		replies := make([]types.Tweet, 0, len(members)-1)
		for _, m := range members {
			if m.ID != root.ID {
				replies = append(replies, m)
			}
		}
		sortTweets(replies)
		threads = append(threads, types.SelfThread{Root: root, Replies: replies})
	}

	sortThreads(threads)
	return threads
}

// ByReplyEdges follows in-reply-to links. A non-reply becomes a root when all
// of its direct replies share its author; the thread then collects every
// same-author reply reachable from it inside the root's conversation.
func ByReplyEdges(batch []types.Tweet) []types.SelfThread {
	tweets := dedupe(batch)

	children := make(map[string][]types.Tweet)
	for _, t := range tweets {
		if t.IsReply {
			children[t.InReplyToStatusID] = append(children[t.InReplyToStatusID], t)
		}
	}

	var threads []types.SelfThread
	for _, root := range tweets {
		if root.IsReply || root.AuthorID == "" {
			continue
		}
		direct := children[root.ID]
		if len(direct) == 0 || !allBy(direct, root.AuthorID) {
			continue
		}

		replies := collect(root, children)
		if len(replies) == 0 {
			continue
		}
		sortTweets(replies)
		threads = append(threads, types.SelfThread{Root: root, Replies: replies})
	}

	sortThreads(threads)
	return threads
}

// collect walks the reply graph breadth-first from root along same-author
// edges. Replies that carry an explicit conversation id other than the
// root's are left out.
func collect(root types.Tweet, children map[string][]types.Tweet) []types.Tweet {
	conversation := root.ConversationKey()
	visited := map[string]struct{}{root.ID: {}}
	queue := []string{root.ID}

	var out []types.Tweet
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, c := range children[id] {
			if c.AuthorID != root.AuthorID {
				continue
			}
			if c.ConversationID != "" && c.ConversationID != conversation {
				continue
			}
			if _, ok := visited[c.ID]; ok {
				continue
			}
			visited[c.ID] = struct{}{}
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out
}

// selectRoot returns the earliest candidate by (creation time, id).
func selectRoot(candidates []types.Tweet) (types.Tweet, error) {
	if len(candidates) == 0 {
		return types.Tweet{}, fmt.Errorf("%w: no candidates", ErrAmbiguousRoot)
	}
	best := candidates[0]
	tied := false
	for _, c := range candidates[1:] {
		switch cmp := compare(c, best); {
		case cmp < 0:
			best, tied = c, false
		case cmp == 0:
			tied = true
		}
	}
	if tied {
		return types.Tweet{}, fmt.Errorf("%w: duplicate candidate %s", ErrAmbiguousRoot, best.ID)
	}
	return best, nil
}

// Validate checks that a thread has one non-empty author, a root that is the
// only candidate, and strictly ordered replies.
func Validate(st types.SelfThread) error {
	if st.Root.ID == "" {
		return fmt.Errorf("%w: empty root", ErrAmbiguousRoot)
	}
	if len(st.Replies) == 0 {
		return fmt.Errorf("%w: root %s has no replies", ErrInvalidThread, st.Root.ID)
	}
	if st.Root.AuthorID == "" {
		return fmt.Errorf("%w: root %s has no author", ErrInvalidThread, st.Root.ID)
	}
	for i, r := range st.Replies {
		if r.AuthorID != st.Root.AuthorID {
			return fmt.Errorf("%w: reply %s by %q in thread of %q", ErrInvalidThread, r.ID, r.AuthorID, st.Root.AuthorID)
		}
		if r.ID == st.Root.ID {
			return fmt.Errorf("%w: root %s repeated among replies", ErrAmbiguousRoot, r.ID)
		}
		if st.Root.IsReply && !r.IsReply {
			return fmt.Errorf("%w: reply %s is a better root than %s", ErrAmbiguousRoot, r.ID, st.Root.ID)
		}
		if i > 0 && !less(st.Replies[i-1], r) {
			return fmt.Errorf("%w: replies out of order at %s", ErrInvalidThread, r.ID)
		}
	}
	return nil
}

func singleAuthor(members []types.Tweet) bool {
	return members[0].AuthorID != "" && allBy(members, members[0].AuthorID)
}

func allBy(tweets []types.Tweet, authorID string) bool {
	for _, t := range tweets {
		if t.AuthorID != authorID {
			return false
		}
	}
	return true
}

func nonReplies(tweets []types.Tweet) []types.Tweet {
	var out []types.Tweet
	for _, t := range tweets {
		if !t.IsReply {
			out = append(out, t)
		}
	}
	return out
}
