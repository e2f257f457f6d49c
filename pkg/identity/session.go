package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gamelog/pkg/domain"
)

// Session is the client-side view of a signed-in user.
type Session struct {
	AccessToken  string      `yaml:"accessToken"`
	RefreshToken string      `yaml:"refreshToken"`
	ExpiresAt    time.Time   `yaml:"expiresAt"`
	User         domain.User `yaml:"-"`
	UserID       string      `yaml:"userId"`
	Email        string      `yaml:"email"`
}

// Expiring reports whether the access token expires within skew.
func (s Session) Expiring(now time.Time, skew time.Duration) bool {
	return !s.ExpiresAt.IsZero() && now.Add(skew).After(s.ExpiresAt)
}

// Persister stores the session between process runs.
type Persister interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// FileSessionStore keeps the session as YAML in a user-only file.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath is $XDG_CONFIG_HOME/gamelog/session.yaml or its
// platform equivalent.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gamelog", "session.yaml"), nil
}

func (f *FileSessionStore) Load() (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return Session{}, false, fmt.Errorf("parse session file: %w", err)
	}
	if strings.TrimSpace(sess.AccessToken) == "" {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (f *FileSessionStore) Save(sess Session) error {
	sess.UserID = sess.User.ID
	sess.Email = sess.User.Email
	data, err := yaml.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileSessionStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemorySessionStore is a Persister that forgets on exit.
type MemorySessionStore struct {
	sess *Session
}

func (m *MemorySessionStore) Load() (Session, bool, error) {
	if m.sess == nil {
		return Session{}, false, nil
	}
	return *m.sess, true, nil
}

func (m *MemorySessionStore) Save(sess Session) error {
	m.sess = &sess
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.sess = nil
	return nil
}
