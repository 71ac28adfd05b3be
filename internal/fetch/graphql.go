package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ibeckermayer/threadscrape/internal/timeline"
)

// Endpoint is one GraphQL timeline query the web client issues.
type Endpoint struct {
	Name string
	URL  string
	// Vars are the query variables beyond userId, count and cursor.
	Vars map[string]any
}

// Endpoints are the known-working timeline queries, in fallback order.
var Endpoints = []Endpoint{
	{
		Name: "user_tweets",
		URL:  "https://x.com/i/api/graphql/oFoUJOuykOofizcgjEX4GQ/UserTweets",
		Vars: map[string]any{
			"includePromotedContent":                 true,
			"withQuickPromoteEligibilityTweetFields": true,
			"withVoice":                              true,
		},
	},
	{
		Name: "user_tweets_and_replies",
		URL:  "https://twitter.com/i/api/graphql/GiG_N2UeCnS2K4QGE1JwAw/UserTweetsAndReplies",
		Vars: map[string]any{
			"includePromotedContent": false,
			"withCommunity":          true,
			"withVoice":              true,
			"withV2Timeline":         true,
		},
	},
	{
		Name: "user_tweets_v2",
		URL:  "https://twitter.com/i/api/graphql/3JNH4e9dq1BifLxAa3UmOA/UserTweets",
		Vars: map[string]any{
			"includePromotedContent":                 false,
			"withQuickPromoteEligibilityTweetFields": true,
			"withVoice":                              true,
			"withV2Timeline":                         true,
		},
	},
}

// EndpointByName looks up one of Endpoints.
func EndpointByName(name string) (Endpoint, bool) {
	for _, ep := range Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// Features is the feature flag set the web client sends with timeline queries.
var Features = map[string]bool{
	"rweb_video_screen_enabled":                                               false,
	"profile_label_improvements_pcf_label_in_post_enabled":                    true,
	"rweb_tipjar_consumption_enabled":                                         true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"premium_content_api_read_enabled":                                        false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"responsive_web_grok_analyze_button_fetch_trends_enabled":                 false,
	"responsive_web_grok_analyze_post_followups_enabled":                      true,
	"responsive_web_jetfuel_frame":                                            false,
	"responsive_web_grok_share_attachment_enabled":                            true,
	"articles_preview_enabled":                                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"responsive_web_grok_show_grok_translated_post":                           false,
	"responsive_web_grok_analysis_button_from_backend":                        true,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_grok_image_annotation_enabled":                            true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

var fieldToggles = map[string]bool{"withArticlePlainText": false}

// GraphQL fetches pages from one timeline endpoint over HTTP.
type GraphQL struct {
	endpoint Endpoint
	client   *http.Client
	sessions Sessions
}

// NewGraphQL creates a strategy for ep.
func NewGraphQL(ep Endpoint, client *http.Client, sessions Sessions) *GraphQL {
	return &GraphQL{endpoint: ep, client: client, sessions: sessions}
}

func (g *GraphQL) Name() string { return g.endpoint.Name }

// FetchPage issues the query for target and parses the timeline.
func (g *GraphQL) FetchPage(ctx context.Context, target Target, cursor string, count int) (timeline.Page, error) {
	session, err := g.sessions.Session()
	if err != nil {
		return timeline.Page{}, err
	}

	reqURL, err := g.requestURL(target, cursor, count)
	if err != nil {
		return timeline.Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return timeline.Page{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range session.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return timeline.Page{}, fmt.Errorf("request %s: %w", g.endpoint.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return timeline.Page{}, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return timeline.Page{}, fmt.Errorf("%w: reset %s", ErrRateLimited, resp.Header.Get("x-rate-limit-reset"))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return timeline.Page{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return timeline.Page{}, fmt.Errorf("read body: %w", err)
	}
	page, err := timeline.Parse(body)
	if err != nil {
		return timeline.Page{}, err
	}
	page.Endpoint = g.endpoint.Name
	return page, nil
}

func (g *GraphQL) requestURL(target Target, cursor string, count int) (string, error) {
	vars := make(map[string]any, len(g.endpoint.Vars)+3)
	for k, v := range g.endpoint.Vars {
		vars[k] = v
	}
	vars["userId"] = target.UserID
	vars["count"] = count
	if cursor != "" {
		vars["cursor"] = cursor
	}

	q := url.Values{}
	for name, v := range map[string]any{"variables": vars, "features": Features, "fieldToggles": fieldToggles} {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", name, err)
		}
		q.Set(name, string(data))
	}
	return g.endpoint.URL + "?" + q.Encode(), nil
}
