// Package timeline decodes GraphQL user timeline responses into raw tweet
// fragments and the bottom pagination cursor.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoTimeline is returned when a response carries none of the known
// timeline shapes.
var ErrNoTimeline = errors.New("response has no timeline")

const (
	instructionAddEntries = "TimelineAddEntries"
	instructionPinEntry   = "TimelinePinEntry"

	entryItem   = "TimelineTimelineItem"
	entryModule = "TimelineTimelineModule"
	entryCursor = "TimelineTimelineCursor"

	cursorBottom = "Bottom"
)

// Page is one decoded timeline response.
type Page struct {
	// Fragments are tweet_results.result objects in timeline order.
	Fragments []json.RawMessage
	// NextCursor is empty when the timeline has no further pages.
	NextCursor string
	// Endpoint names the strategy that produced the page.
	Endpoint string
	// Entries is the number of timeline entries seen, cursors included.
	Entries int
}

type response struct {
	Data struct {
		User *struct {
			Result *struct {
				Timeline   *timelineWrapper `json:"timeline"`
				TimelineV2 *timelineWrapper `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
		UserTweetsAndReplies *struct {
			Timeline *timelineWrapper `json:"timeline"`
		} `json:"user_tweets_and_replies"`
	} `json:"data"`
}

type timelineWrapper struct {
	Timeline *timelineBody `json:"timeline"`
}

type timelineBody struct {
	Instructions []instruction `json:"instructions"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
	Entry   *entry  `json:"entry"`
}

type entry struct {
	EntryID string  `json:"entryId"`
	Content content `json:"content"`
}

type content struct {
	EntryType   string       `json:"entryType"`
	CursorType  string       `json:"cursorType"`
	Value       string       `json:"value"`
	ItemContent *itemContent `json:"itemContent"`
	Items       []struct {
		Item struct {
			ItemContent *itemContent `json:"itemContent"`
		} `json:"item"`
	} `json:"items"`
}

type itemContent struct {
	TweetResults *struct {
		Result json.RawMessage `json:"result"`
	} `json:"tweet_results"`
}

func (ic *itemContent) fragment() json.RawMessage {
	if ic == nil || ic.TweetResults == nil || len(ic.TweetResults.Result) == 0 || string(ic.TweetResults.Result) == "null" {
		return nil
	}
	return ic.TweetResults.Result
}

// Valid reports whether body contains a recognised timeline.
func Valid(body []byte) bool {
	_, err := find(body)
	return err == nil
}

// Parse decodes a response body. An empty timeline is a valid page with no
// fragments and no cursor.
func Parse(body []byte) (Page, error) {
	tl, err := find(body)
	if err != nil {
		return Page{}, err
	}

	var page Page
	add := func(e entry) {
		page.Entries++
		switch e.Content.EntryType {
		case entryItem:
			if f := e.Content.ItemContent.fragment(); f != nil {
				page.Fragments = append(page.Fragments, f)
			}
		case entryModule:
			// Conversation modules hold the self-thread pieces the profile shows together.
			for _, it := range e.Content.Items {
				if f := it.Item.ItemContent.fragment(); f != nil {
					page.Fragments = append(page.Fragments, f)
				}
			}
		case entryCursor:
			if e.Content.CursorType == cursorBottom {
				page.NextCursor = e.Content.Value
			}
		}
	}

	for _, in := range tl.Instructions {
		switch in.Type {
		case instructionAddEntries:
			for _, e := range in.Entries {
				add(e)
			}
		case instructionPinEntry:
			if in.Entry != nil {
				add(*in.Entry)
			}
		}
	}

	return page, nil
}

func find(body []byte) (*timelineBody, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrNoTimeline, err)
	}

	if u := resp.Data.User; u != nil && u.Result != nil {
		if w := u.Result.Timeline; w != nil && w.Timeline != nil {
			return w.Timeline, nil
		}
		if w := u.Result.TimelineV2; w != nil && w.Timeline != nil {
			return w.Timeline, nil
		}
	}
	if r := resp.Data.UserTweetsAndReplies; r != nil && r.Timeline != nil && r.Timeline.Timeline != nil {
		return r.Timeline.Timeline, nil
	}
	return nil, ErrNoTimeline
}
