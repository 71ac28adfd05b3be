package thread

import (
	"sort"
	"strings"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

// compareIDs orders tweet ids. Ids made only of decimal digits compare
// numerically (shorter is smaller once leading zeros are gone), everything
// else lexicographically. Numeric ids sort before non-numeric ones.
func compareIDs(a, b string) int {
	an, bn := isDecimal(a), isDecimal(b)
	switch {
	case an && bn:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case an:
		return -1
	case bn:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compare orders tweets by creation time, then id.
func compare(a, b types.Tweet) int {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return -1
	case a.CreatedAt.After(b.CreatedAt):
		return 1
	}
	return compareIDs(a.ID, b.ID)
}

func less(a, b types.Tweet) bool {
	return compare(a, b) < 0
}

func sortTweets(tweets []types.Tweet) {
	sort.SliceStable(tweets, func(i, j int) bool { return less(tweets[i], tweets[j]) })
}

func sortThreads(threads []types.SelfThread) {
	sort.SliceStable(threads, func(i, j int) bool { return less(threads[i].Root, threads[j].Root) })
}
