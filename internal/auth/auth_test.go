package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var now = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

func writeSession(t *testing.T, s Session) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "twitter_auth.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func validSession() Session {
	return Session{
		CookieString: "auth_token=abc; ct0=csrf123; lang=en",
		CSRFToken:    "csrf123",
		Timestamp:    now.Add(-time.Hour).UnixMilli(),
		Expires:      now.Add(48 * time.Hour).UnixMilli(),
		IsValid:      true,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Session)
		wantErr error
	}{
		{"valid", func(s *Session) {}, nil},
		{"flagged invalid", func(s *Session) { s.IsValid = false }, ErrAuthInvalid},
		{"no csrf", func(s *Session) { s.CSRFToken = "" }, ErrAuthInvalid},
		{"expired", func(s *Session) { s.Expires = now.Add(-time.Minute).UnixMilli() }, ErrAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSession()
			tt.mutate(&s)
			got, err := Load(writeSession(t, s), now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Remaining(now) != 48*time.Hour {
					t.Errorf("Remaining: got %v", got.Remaining(now))
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingAndGarbage(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nope.json"), now); !errors.Is(err, ErrAuthMissing) {
		t.Errorf("expected ErrAuthMissing, got %v", err)
	}

	garbage := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(garbage, now); !errors.Is(err, ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestHeaders(t *testing.T) {
	s := validSession()
	h := s.Headers()

	if h["authorization"] != "Bearer "+DefaultBearerToken {
		t.Errorf("authorization: got %q", h["authorization"])
	}
	if h["x-csrf-token"] != "csrf123" || h["cookie"] != s.CookieString {
		t.Errorf("csrf/cookie headers wrong: %v", h)
	}

	s.BearerToken = "custom"
	if got := s.Headers()["authorization"]; got != "Bearer custom" {
		t.Errorf("custom bearer: got %q", got)
	}
}

func TestBrowserCookies(t *testing.T) {
	s := validSession()
	s.CookieString = "auth_token=abc;  ct0=csrf123;;broken; guest_id=v1%3A1=2"

	cookies := s.BrowserCookies()
	if len(cookies) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(cookies))
	}
	if cookies[0].Name != "auth_token" || !cookies[0].HTTPOnly {
		t.Errorf("auth_token cookie: %+v", cookies[0])
	}
	if cookies[2].Name != "guest_id" || cookies[2].Value != "v1%3A1=2" {
		t.Errorf("value with '=' should be kept whole: %+v", cookies[2])
	}
	for _, c := range cookies {
		if c.Domain != ".x.com" {
			t.Errorf("cookie %s domain: got %q", c.Name, c.Domain)
		}
		if c.Expires == nil || !c.Expires.Time().Equal(s.ExpiresAt()) {
			t.Errorf("cookie %s expiry: got %v, want %v", c.Name, c.Expires, s.ExpiresAt())
		}
	}
}

func TestManager_ReloadsChangedFile(t *testing.T) {
	s := validSession()
	path := writeSession(t, s)

	m := NewManager(path, zerolog.Nop())
	m.now = func() time.Time { return now }

	first, err := m.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	s.CSRFToken = "rotated"
	s.CookieString = "auth_token=abc; ct0=rotated"
	data, _ := json.Marshal(s)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	second, err := m.Session()
	if err != nil {
		t.Fatalf("Session after rotate: %v", err)
	}
	if first.CSRFToken == second.CSRFToken {
		t.Errorf("expected reloaded session, still %q", second.CSRFToken)
	}

	m.now = func() time.Time { return now.Add(72 * time.Hour) }
	if m.IsAuthenticated() {
		t.Errorf("expected expired session to be rejected")
	}
}

func TestManager_BearerTokenFallback(t *testing.T) {
	path := writeSession(t, validSession())
	m := NewManager(path, zerolog.Nop())
	m.now = func() time.Time { return now }
	m.SetBearerToken("configured")

	s, err := m.Session()
	if err != nil {
		t.Fatal(err)
	}
	if s.Bearer() != "configured" {
		t.Errorf("bearer: got %q", s.Bearer())
	}

	withOwn := validSession()
	withOwn.BearerToken = "from-file"
	m = NewManager(writeSession(t, withOwn), zerolog.Nop())
	m.now = func() time.Time { return now }
	m.SetBearerToken("configured")
	if s, _ := m.Session(); s.Bearer() != "from-file" {
		t.Errorf("file token should win, got %q", s.Bearer())
	}
}
