// Package storage keeps the CLI session on disk between invocations.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFile is the session file used when none is given.
const DefaultFile = "nikahprep-session.json"

// Session holds the tokens and preferences of the signed-in user.
type Session struct {
	BaseURL      string    `json:"base_url,omitempty"`
	Email        string    `json:"email,omitempty"`
	Theme        string    `json:"theme,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`

	mu   sync.Mutex
	path string
}

// Open loads the session stored at path. A missing file yields an empty
// session that is written on the first Save.
func Open(path string) (*Session, error) {
	s := &Session{path: path}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file backing s.
func (s *Session) Path() string { return s.path }

// Save writes s to its file, readable by the owner only.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(s)
}

// Tokens returns the current access and refresh tokens.
func (s *Session) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AccessToken, s.RefreshToken
}

// SetTokens replaces the token pair after login or refresh.
func (s *Session) SetTokens(access, refresh string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AccessToken = access
	s.RefreshToken = refresh
	s.ExpiresAt = expiresAt
}

// SetUser records who is signed in.
func (s *Session) SetUser(email, theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Email = email
	s.Theme = theme
}

// SignedIn reports whether s holds a refresh token.
func (s *Session) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RefreshToken != ""
}

// Clear forgets the user and tokens and saves the result. The base URL is
// kept.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.Email, s.Theme = "", ""
	s.AccessToken, s.RefreshToken = "", ""
	s.ExpiresAt = time.Time{}
	s.mu.Unlock()
	return s.Save()
}
