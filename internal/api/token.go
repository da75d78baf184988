package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession is returned when neither the env var nor a saved session
// provides a credential.
var ErrNoSession = errors.New("api: no saved session, run login first")

const sessionFile = "session.json"

// TokenStore persists login sessions under the data dir and resolves the
// bearer credential for outgoing requests. FIBOCHAT_TOKEN overrides any
// saved session, which keeps CI and scripted use loginless.
type TokenStore struct {
	dir string
}

// NewTokenStore creates a store rooted at dir.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

// Token returns the current bearer credential with any "Bearer " prefix
// stripped. Called per connection attempt, so a re-login is picked up
// without restarting the client.
func (s *TokenStore) Token() (string, error) {
	if t := os.Getenv("FIBOCHAT_TOKEN"); t != "" {
		return strings.TrimPrefix(t, "Bearer "), nil
	}

	session, err := s.Load()
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(session.AccessToken, "Bearer "), nil
}

// Save writes the session to disk, readable by the owner only.
func (s *TokenStore) Save(session *Session) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads the saved session.
func (s *TokenStore) Load() (*Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &session, nil
}

// Clear removes the saved session.
func (s *TokenStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
