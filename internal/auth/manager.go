package auth

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager hands out the current session, re-reading the auth file when it
// changes on disk so long-running schedules pick up a refreshed export.
type Manager struct {
	path   string
	bearer string
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	session *Session
	modTime time.Time
}

// NewManager creates a manager for the auth file at path
func NewManager(path string, logger zerolog.Logger) *Manager {
	return &Manager{
		path:   path,
		now:    time.Now,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// SetBearerToken sets the token used when the auth file carries none.
func (m *Manager) SetBearerToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bearer = token
	m.session = nil
}

// Path returns the auth file location.
func (m *Manager) Path() string {
	return m.path
}

// Session returns a validated session, reloading the file when needed.
func (m *Manager) Session() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	modTime := fileModTime(m.path)

	if m.session != nil && modTime.Equal(m.modTime) {
		if err := m.session.Check(now); err != nil {
			return nil, err
		}
		return m.session, nil
	}

	s, err := Load(m.path, now)
	if err != nil {
		m.session = nil
		return nil, err
	}

	if s.BearerToken == "" {
		s.BearerToken = m.bearer
	}
	m.session, m.modTime = s, modTime
	m.logger.Info().
		Time("updated_at", s.UpdatedAt()).
		Time("expires_at", s.ExpiresAt()).
		Str("remaining", s.Remaining(now).Round(time.Minute).String()).
		Msg("loaded auth data")
	return s, nil
}

// IsAuthenticated reports whether a usable session is available
func (m *Manager) IsAuthenticated() bool {
	_, err := m.Session()
	return err == nil
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
