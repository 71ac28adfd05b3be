// Package normalize converts raw GraphQL tweet fragments into types.Tweet
// records. This is the only place that looks at the untyped API shape.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

// ErrMalformedRecord is re-exported for callers that only import normalize.
var ErrMalformedRecord = types.ErrMalformedRecord

// Normalize decodes one tweet result fragment.
func Normalize(fragment json.RawMessage) (types.Tweet, error) {
	var res rawResult
	if err := json.Unmarshal(fragment, &res); err != nil {
		return types.Tweet{}, fmt.Errorf("%w: decode: %v", ErrMalformedRecord, err)
	}

	tweet, err := unwrap(&res)
	if err != nil {
		return types.Tweet{}, err
	}

	legacy := tweet.Legacy
	if legacy == nil {
		return types.Tweet{}, fmt.Errorf("%w: no legacy block", ErrMalformedRecord)
	}

	id := tweet.RestID
	if id == "" {
		id = legacy.IDStr
	}
	if id == "" {
		return types.Tweet{}, fmt.Errorf("%w: no tweet id", ErrMalformedRecord)
	}

	if legacy.CreatedAt == "" {
		return types.Tweet{}, fmt.Errorf("%w: tweet %s: no created_at", ErrMalformedRecord, id)
	}
	createdAt, err := time.Parse(createdAtLayout, legacy.CreatedAt)
	if err != nil {
		return types.Tweet{}, fmt.Errorf("%w: tweet %s: bad created_at %q", ErrMalformedRecord, id, legacy.CreatedAt)
	}

	authorID, handle, name := author(tweet.Core)

	t := types.Tweet{
		ID:                id,
		AuthorID:          authorID,
		AuthorHandle:      handle,
		AuthorName:        name,
		CreatedAt:         createdAt.UTC(),
		Text:              fullText(tweet),
		ConversationID:    legacy.ConversationIDStr,
		IsReply:           legacy.InReplyToStatusIDStr != "",
		InReplyToStatusID: legacy.InReplyToStatusIDStr,
		InReplyToUserID:   legacy.InReplyToUserIDStr,
		IsRepost:          present(legacy.RetweetedResult) || present(legacy.RetweetedStatus),
		LikeCount:         legacy.FavoriteCount,
		RepostCount:       legacy.RetweetCount,
		ReplyCount:        legacy.ReplyCount,
		Language:          legacy.Lang,
		Media:             media(legacy),
		URL:               statusURL(handle, id),
	}

	if err := t.Validate(); err != nil {
		return types.Tweet{}, err
	}
	return t, nil
}

// unwrap resolves the result union down to a plain Tweet.
func unwrap(res *rawResult) (*rawResult, error) {
	switch res.Typename {
	case typeTweetWithVisibility:
		if res.Tweet == nil {
			return nil, fmt.Errorf("%w: visibility wrapper without tweet", ErrMalformedRecord)
		}
		return unwrap(res.Tweet)
	case typeTweetTombstone, typeTweetUnavailable:
		return nil, fmt.Errorf("%w: %s", ErrMalformedRecord, res.Typename)
	case typeTweet, "":
		// Older payloads omit __typename on the tweet itself.
		return res, nil
	default:
		return nil, fmt.Errorf("%w: unsupported result type %q", ErrMalformedRecord, res.Typename)
	}
}

// fullText prefers the note (long-form) text over the truncated legacy text.
func fullText(res *rawResult) string {
	if res.NoteTweet != nil {
		if note := res.NoteTweet.NoteTweetResults.Result; note != nil && note.Text != "" {
			return note.Text
		}
	}
	return res.Legacy.FullText
}

// author tolerates a missing user block; empty values are returned instead.
func author(core *rawCore) (id, handle, name string) {
	if core == nil || core.UserResults.Result == nil {
		return "", "", ""
	}
	u := core.UserResults.Result
	id = u.RestID
	if u.Legacy != nil {
		if id == "" {
			id = u.Legacy.IDStr
		}
		handle = u.Legacy.ScreenName
		name = u.Legacy.Name
	}
	if u.Core != nil {
		if handle == "" {
			handle = u.Core.ScreenName
		}
		if name == "" {
			name = u.Core.Name
		}
	}
	return id, handle, name
}

func media(legacy *rawLegacy) []types.Media {
	src := legacy.ExtendedEntities
	if src == nil || len(src.Media) == 0 {
		src = legacy.Entities
	}
	if src == nil || len(src.Media) == 0 {
		return nil
	}
	out := make([]types.Media, 0, len(src.Media))
	for _, m := range src.Media {
		if m.MediaURLHTTPS == "" {
			continue
		}
		out = append(out, types.Media{Type: m.Type, URL: m.MediaURLHTTPS})
	}
	return out
}

func statusURL(handle, id string) string {
	user := handle
	if user == "" {
		user = statusURLFallbackUsername
	}
	return "https://twitter.com/" + user + "/" + id
}

// NormalizeBatch normalizes the fragments collected for one account.
// Failures are isolated per fragment and returned alongside the good records;
// duplicate ids keep the first occurrence.
func NormalizeBatch(account string, fragments []json.RawMessage) ([]types.Tweet, []error) {
	account = strings.TrimPrefix(strings.TrimSpace(account), "@")

	tweets := make([]types.Tweet, 0, len(fragments))
	seen := make(map[string]struct{}, len(fragments))
	var errs []error

	for i, fragment := range fragments {
		t, err := Normalize(fragment)
		if err != nil {
			errs = append(errs, fmt.Errorf("fragment %d: %w", i, err))
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		t.SourceAccount = account
		tweets = append(tweets, t)
	}

	return tweets, errs
}
