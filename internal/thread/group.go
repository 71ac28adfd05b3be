// Package thread groups tweets by conversation and reconstructs self-threads,
// the reply chains an author posts under their own tweet.
//
// Everything here is pure: the same batch always produces the same output.
package thread

import "github.com/ibeckermayer/threadscrape/internal/types"

// GroupByConversation partitions a batch by conversation key. Duplicate ids
// collapse to the first occurrence, singleton groups are kept and members are
// ordered by creation time, then id.
func GroupByConversation(batch []types.Tweet) map[string][]types.Tweet {
	groups := make(map[string][]types.Tweet)
	for _, t := range dedupe(batch) {
		key := t.ConversationKey()
		groups[key] = append(groups[key], t)
	}
	for _, members := range groups {
		sortTweets(members)
	}
	return groups
}

// dedupe drops repeated ids, keeping the first one seen.
func dedupe(batch []types.Tweet) []types.Tweet {
	seen := make(map[string]struct{}, len(batch))
	out := make([]types.Tweet, 0, len(batch))
	for _, t := range batch {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
