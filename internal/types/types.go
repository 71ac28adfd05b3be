package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRecord is returned when a raw fragment or a constructed tweet
// lacks the minimum required fields.
var ErrMalformedRecord = errors.New("malformed tweet record")

// Media is a media attachment of a tweet
type Media struct {
	Type string `json:"type"` // "photo", "video", "animated_gif"
	URL  string `json:"url"`
}

// Tweet is a normalized tweet record. Values are never mutated after
// normalization; copy before changing anything.
type Tweet struct {
	ID                string    `json:"id"`
	AuthorID          string    `json:"author_id"`
	AuthorHandle      string    `json:"author_handle"`
	AuthorName        string    `json:"author_name"`
	CreatedAt         time.Time `json:"created_at"`
	Text              string    `json:"text"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	IsReply           bool      `json:"is_reply"`
	InReplyToStatusID string    `json:"in_reply_to_status_id,omitempty"`
	InReplyToUserID   string    `json:"in_reply_to_user_id,omitempty"`
	IsRepost          bool      `json:"is_repost"`
	LikeCount         int       `json:"like_count"`
	RepostCount       int       `json:"repost_count"`
	ReplyCount        int       `json:"reply_count"`
	Language          string    `json:"language,omitempty"`
	Media             []Media   `json:"media,omitempty"`
	URL               string    `json:"url"`
	SourceAccount     string    `json:"source_account,omitempty"`
}

// ConversationKey returns the conversation id, or the tweet's own id when the
// payload carried none.
func (t Tweet) ConversationKey() string {
	if t.ConversationID != "" {
		return t.ConversationID
	}
	return t.ID
}

// IsSelfReply reports whether the tweet replies to its own author.
// An empty author never counts as self.
func (t Tweet) IsSelfReply() bool {
	return t.IsReply && t.AuthorID != "" && t.InReplyToUserID == t.AuthorID
}

// Photos returns the photo attachments.
func (t Tweet) Photos() []Media {
	var photos []Media
	for _, m := range t.Media {
		if m.Type == "photo" {
			photos = append(photos, m)
		}
	}
	return photos
}

// Validate checks the record invariants.
func (t Tweet) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case t.CreatedAt.IsZero():
		return fmt.Errorf("%w: tweet %s: missing creation time", ErrMalformedRecord, t.ID)
	case t.IsReply && t.InReplyToStatusID == "":
		return fmt.Errorf("%w: tweet %s: reply without parent status id", ErrMalformedRecord, t.ID)
	case !t.IsReply && t.InReplyToStatusID != "":
		return fmt.Errorf("%w: tweet %s: parent status id on a non-reply", ErrMalformedRecord, t.ID)
	case t.LikeCount < 0 || t.RepostCount < 0 || t.ReplyCount < 0:
		return fmt.Errorf("%w: tweet %s: negative engagement count", ErrMalformedRecord, t.ID)
	}
	return nil
}

// SelfThread is a chain of tweets by one author: the root and its replies
// ordered by creation time, then id.
type SelfThread struct {
	Root    Tweet   `json:"root"`
	Replies []Tweet `json:"replies"`
}

// Len returns the number of tweets in the thread including the root.
func (s SelfThread) Len() int {
	return 1 + len(s.Replies)
}

// ImageText is the OCR outcome for one attached photo
type ImageText struct {
	URL        string  `json:"url"`
	Text       string  `json:"ocr_text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ProcessedTweet is a tweet that passed the filter, enriched with image text
type ProcessedTweet struct {
	Tweet
	Images            []ImageText `json:"image_ocr_results,omitempty"`
	CombinedImageText string      `json:"combined_image_text,omitempty"`
}
