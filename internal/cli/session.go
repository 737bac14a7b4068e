package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"expohub/internal/models"
)

// Session is what expoctl remembers between runs.
type Session struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	UserID   string `yaml:"user_id,omitempty"`
	Email    string `yaml:"email,omitempty"`
	Username string `yaml:"username,omitempty"`
}

func (s Session) User() *models.User {
	if s.UserID == "" {
		return nil
	}
	return &models.User{ID: s.UserID, Email: s.Email, Username: s.Username}
}

func (s *Session) SetUser(u *models.User) {
	s.UserID, s.Email, s.Username = "", "", ""
	if u != nil {
		s.UserID, s.Email, s.Username = u.ID, u.Email, u.Username
	}
}

// LoadSession returns an empty session when the file does not exist.
func LoadSession(path string) (Session, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes the session readable by the owner only.
func (s Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "expohub", "session.yaml")
}
