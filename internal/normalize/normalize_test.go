package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const rootFragment = `{
	"__typename": "Tweet",
	"rest_id": "1001",
	"core": {"user_results": {"result": {"rest_id": "42", "legacy": {"screen_name": "gregisenberg", "name": "Greg"}}}},
	"legacy": {
		"created_at": "Tue May 06 14:03:11 +0000 2025",
		"full_text": "short preview…",
		"conversation_id_str": "1001",
		"favorite_count": 120,
		"retweet_count": 14,
		"reply_count": 9,
		"lang": "en",
		"extended_entities": {"media": [
			{"type": "photo", "media_url_https": "https://pbs.twimg.com/media/a.jpg"},
			{"type": "video", "media_url_https": "https://pbs.twimg.com/media/b.jpg"}
		]}
	},
	"note_tweet": {"note_tweet_results": {"result": {"text": "the complete long-form text"}}}
}`

func TestNormalize_Root(t *testing.T) {
	tweet, err := Normalize(json.RawMessage(rootFragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tweet.ID != "1001" {
		t.Errorf("ID: got %q, want 1001", tweet.ID)
	}
	if tweet.AuthorID != "42" || tweet.AuthorHandle != "gregisenberg" || tweet.AuthorName != "Greg" {
		t.Errorf("author: got %q/%q/%q", tweet.AuthorID, tweet.AuthorHandle, tweet.AuthorName)
	}
	want := time.Date(2025, time.May, 6, 14, 3, 11, 0, time.UTC)
	if !tweet.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt: got %v, want %v", tweet.CreatedAt, want)
	}
	if tweet.IsReply || tweet.InReplyToStatusID != "" {
		t.Errorf("root must not be a reply")
	}
	if tweet.LikeCount != 120 || tweet.RepostCount != 14 || tweet.ReplyCount != 9 {
		t.Errorf("counts: got %d/%d/%d", tweet.LikeCount, tweet.RepostCount, tweet.ReplyCount)
	}
	if tweet.Language != "en" {
		t.Errorf("Language: got %q", tweet.Language)
	}
	if len(tweet.Media) != 2 || len(tweet.Photos()) != 1 {
		t.Errorf("media: got %d items, %d photos", len(tweet.Media), len(tweet.Photos()))
	}
	if tweet.URL != "https://twitter.com/gregisenberg/1001" {
		t.Errorf("URL: got %q", tweet.URL)
	}
}

func TestNormalize_NoteTextOverridesLegacy(t *testing.T) {
	tweet, err := Normalize(json.RawMessage(rootFragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tweet.Text != "the complete long-form text" {
		t.Errorf("Text: got %q, want the note text exactly", tweet.Text)
	}
}

func TestNormalize_EmptyNoteKeepsLegacy(t *testing.T) {
	fragment := `{
		"rest_id": "7",
		"legacy": {"created_at": "Tue May 06 14:03:11 +0000 2025", "full_text": "legacy text"},
		"note_tweet": {"note_tweet_results": {"result": {"text": ""}}}
	}`
	tweet, err := Normalize(json.RawMessage(fragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tweet.Text != "legacy text" {
		t.Errorf("Text: got %q, want legacy text", tweet.Text)
	}
}

func TestNormalize_ReplyAndVisibilityWrapper(t *testing.T) {
	fragment := `{
		"__typename": "TweetWithVisibilityResults",
		"tweet": {
			"rest_id": "1002",
			"core": {"user_results": {"result": {"rest_id": "42", "core": {"screen_name": "gregisenberg", "name": "Greg"}}}},
			"legacy": {
				"created_at": "Tue May 06 14:05:00 +0000 2025",
				"full_text": "2/ more",
				"conversation_id_str": "1001",
				"in_reply_to_status_id_str": "1001",
				"in_reply_to_user_id_str": "42"
			}
		}
	}`
	tweet, err := Normalize(json.RawMessage(fragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tweet.IsReply || tweet.InReplyToStatusID != "1001" || tweet.InReplyToUserID != "42" {
		t.Errorf("reply fields: got %+v", tweet)
	}
	if !tweet.IsSelfReply() {
		t.Errorf("expected self-reply")
	}
	if tweet.AuthorHandle != "gregisenberg" {
		t.Errorf("AuthorHandle from user core: got %q", tweet.AuthorHandle)
	}
	if tweet.ConversationKey() != "1001" {
		t.Errorf("ConversationKey: got %q", tweet.ConversationKey())
	}
}

func TestNormalize_MissingAuthorDegrades(t *testing.T) {
	fragment := `{"rest_id": "5", "legacy": {"created_at": "Tue May 06 14:03:11 +0000 2025", "full_text": "x"}}`
	tweet, err := Normalize(json.RawMessage(fragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tweet.AuthorID != "" || tweet.AuthorHandle != "" {
		t.Errorf("expected empty author, got %q/%q", tweet.AuthorID, tweet.AuthorHandle)
	}
	if tweet.URL != "https://twitter.com/i/status/5" {
		t.Errorf("URL: got %q", tweet.URL)
	}
	if tweet.ConversationKey() != "5" {
		t.Errorf("ConversationKey falls back to id, got %q", tweet.ConversationKey())
	}
}

func TestNormalize_Repost(t *testing.T) {
	fragment := `{"rest_id": "9", "legacy": {"created_at": "Tue May 06 14:03:11 +0000 2025", "full_text": "RT @x: hi",
		"retweeted_status_result": {"result": {"rest_id": "1"}}}}`
	tweet, err := Normalize(json.RawMessage(fragment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tweet.IsRepost {
		t.Errorf("expected repost")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"no legacy":       `{"rest_id": "1"}`,
		"no id":           `{"legacy": {"created_at": "Tue May 06 14:03:11 +0000 2025"}}`,
		"no created_at":   `{"rest_id": "1", "legacy": {"full_text": "x"}}`,
		"bad created_at":  `{"rest_id": "1", "legacy": {"created_at": "yesterday"}}`,
		"tombstone":       `{"__typename": "TweetTombstone"}`,
		"empty wrapper":   `{"__typename": "TweetWithVisibilityResults"}`,
		"unknown type":    `{"__typename": "Promoted", "rest_id": "1"}`,
		"negative counts": `{"rest_id": "1", "legacy": {"created_at": "Tue May 06 14:03:11 +0000 2025", "favorite_count": -1}}`,
	}
	for name, fragment := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(json.RawMessage(fragment))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestNormalizeBatch_IsolatesFailuresAndDedupes(t *testing.T) {
	fragments := []json.RawMessage{
		json.RawMessage(rootFragment),
		json.RawMessage(`{"rest_id": "1"}`),
		json.RawMessage(rootFragment),
	}

	tweets, errs := NormalizeBatch("@gregisenberg", fragments)

	if len(tweets) != 1 {
		t.Fatalf("expected 1 tweet, got %d", len(tweets))
	}
	if tweets[0].SourceAccount != "gregisenberg" {
		t.Errorf("SourceAccount: got %q", tweets[0].SourceAccount)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrMalformedRecord) {
		t.Errorf("expected one malformed error, got %v", errs)
	}
}
