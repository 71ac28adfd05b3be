package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

var (
	// ErrAuthMissing means the auth file does not exist.
	ErrAuthMissing = errors.New("auth file not found")
	// ErrAuthInvalid means the auth file is unreadable or marked invalid.
	ErrAuthInvalid = errors.New("auth data invalid")
	// ErrAuthExpired means the session has passed its expiry.
	ErrAuthExpired = errors.New("auth data expired")
)

// DefaultBearerToken is the public web client token, used when the auth file has none.
const DefaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// UserAgent is sent with every API request and used by the headless browser.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

// Session is the contents of the auth file exported from a logged-in browser.
// Timestamps are unix milliseconds.
type Session struct {
	CookieString string `json:"cookieString"`
	CSRFToken    string `json:"csrfToken"`
	BearerToken  string `json:"bearerToken,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Expires      int64  `json:"expires"`
	IsValid      bool   `json:"isValid"`
}

// Load reads and validates the auth file at path.
func Load(path string, now time.Time) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAuthMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthInvalid, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrAuthInvalid, path, err)
	}
	if err := s.Check(now); err != nil {
		return nil, err
	}
	return &s, nil
}

// Check validates the flag, required fields and expiry.
func (s *Session) Check(now time.Time) error {
	switch {
	case !s.IsValid:
		return fmt.Errorf("%w: marked invalid, refresh it from a logged-in browser", ErrAuthInvalid)
	case s.CookieString == "" || s.CSRFToken == "":
		return fmt.Errorf("%w: cookie string or csrf token missing", ErrAuthInvalid)
	case s.Remaining(now) <= 0:
		return fmt.Errorf("%w: at %s", ErrAuthExpired, s.ExpiresAt().Format(time.RFC3339))
	}
	return nil
}

// UpdatedAt is when the auth file was captured.
func (s *Session) UpdatedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// ExpiresAt is when the session stops working.
func (s *Session) ExpiresAt() time.Time {
	return time.UnixMilli(s.Expires)
}

// Remaining returns how long the session stays valid after now.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt().Sub(now)
}

// Bearer returns the configured bearer token or the public default.
func (s *Session) Bearer() string {
	if s.BearerToken != "" {
		return s.BearerToken
	}
	return DefaultBearerToken
}

// Headers returns the request headers the web client sends to the GraphQL API.
func (s *Session) Headers() map[string]string {
	return map[string]string{
		"authorization":             "Bearer " + s.Bearer(),
		"content-type":              "application/json",
		"user-agent":                UserAgent,
		"x-twitter-active-user":     "yes",
		"x-twitter-auth-type":       "OAuth2Session",
		"x-twitter-client-language": "en",
		"x-csrf-token":              s.CSRFToken,
		"cookie":                    s.CookieString,
	}
}

// Cookies splits the cookie string into name/value pairs, in order.
func (s *Session) Cookies() [][2]string {
	var out [][2]string
	for _, part := range strings.Split(s.CookieString, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, [2]string{name, value})
	}
	return out
}

// BrowserCookies returns the session cookies for injection into a headless
// browser on x.com.
func (s *Session) BrowserCookies() []*network.CookieParam {
	exp := cdp.TimeSinceEpoch(s.ExpiresAt())
	var params []*network.CookieParam
	for _, kv := range s.Cookies() {
		params = append(params, &network.CookieParam{
			Name:     kv[0],
			Value:    kv[1],
			Domain:   ".x.com",
			Path:     "/",
			Secure:   true,
			HTTPOnly: kv[0] == "auth_token",
			Expires:  &exp,
		})
	}
	return params
}
