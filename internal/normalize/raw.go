package normalize

import "encoding/json"

// The raw* types mirror the parts of the GraphQL tweet result we read.
// Everything is optional on the wire; presence is checked in Normalize.

const (
	typeTweet                 = "Tweet"
	typeTweetWithVisibility   = "TweetWithVisibilityResults"
	typeTweetTombstone        = "TweetTombstone"
	typeTweetUnavailable      = "TweetUnavailable"
	createdAtLayout           = "Mon Jan 02 15:04:05 -0700 2006"
	statusURLFallbackUsername = "i/status"
)

type rawResult struct {
	Typename  string        `json:"__typename"`
	RestID    string        `json:"rest_id"`
	Core      *rawCore      `json:"core"`
	Legacy    *rawLegacy    `json:"legacy"`
	NoteTweet *rawNoteTweet `json:"note_tweet"`
	// Set on TweetWithVisibilityResults, which wraps the real tweet.
	Tweet *rawResult `json:"tweet"`
}

type rawCore struct {
	UserResults struct {
		Result *rawUser `json:"result"`
	} `json:"user_results"`
}

type rawUser struct {
	RestID string `json:"rest_id"`
	Legacy *struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"legacy"`
	// Newer payloads moved the names here.
	Core *struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"core"`
}

type rawLegacy struct {
	IDStr                string          `json:"id_str"`
	CreatedAt            string          `json:"created_at"`
	FullText             string          `json:"full_text"`
	ConversationIDStr    string          `json:"conversation_id_str"`
	InReplyToStatusIDStr string          `json:"in_reply_to_status_id_str"`
	InReplyToUserIDStr   string          `json:"in_reply_to_user_id_str"`
	FavoriteCount        int             `json:"favorite_count"`
	RetweetCount         int             `json:"retweet_count"`
	ReplyCount           int             `json:"reply_count"`
	Lang                 string          `json:"lang"`
	RetweetedStatus      json.RawMessage `json:"retweeted_status"`
	RetweetedResult      json.RawMessage `json:"retweeted_status_result"`
	Entities             *rawEntities    `json:"entities"`
	ExtendedEntities     *rawEntities    `json:"extended_entities"`
}

type rawEntities struct {
	Media []struct {
		Type          string `json:"type"`
		MediaURLHTTPS string `json:"media_url_https"`
	} `json:"media"`
}

type rawNoteTweet struct {
	NoteTweetResults struct {
		Result *struct {
			Text string `json:"text"`
		} `json:"result"`
	} `json:"note_tweet_results"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
