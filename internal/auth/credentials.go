package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CredentialsDir returns the path to the credentials directory (~/.fieldops).
func CredentialsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".fieldops"), nil
}

// CredentialsPath returns the default token file (~/.fieldops/credentials).
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials"), nil
}

// FileStore keeps the raw access token in a single file readable only by
// the current user. The file's absence means there is no session.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. An empty path selects
// CredentialsPath.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := CredentialsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// Path returns the file the token is written to.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token, creating the directory with restrictive permissions.
func (s *FileStore) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
