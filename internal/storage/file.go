package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// DefaultDir returns $XDG_CONFIG_HOME/lendclient, falling back to ~/.config/lendclient.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "lendclient")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lendclient")
}

// File persists all keys as one JSON object in <dir>/storage.json (mode 0600).
// Every write rewrites the file through a temp file and rename.
type File struct {
	mu   sync.Mutex
	path string
}

var _ Storage = (*File)(nil)

// NewFile returns a file store rooted at dir.
func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, "storage.json")}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) load() (map[string]string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *File) store(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Get returns the value stored under key.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return "", false, Fault("get", err)
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set stores value under key.
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return Fault("set", err)
	}
	m[key] = value
	return Fault("set", f.store(m))
}

// Remove deletes key.
func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return Fault("remove", err)
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return Fault("remove", f.store(m))
}

// Keys lists stored keys.
func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return nil, Fault("keys", err)
	}
	return sortedKeys(m), nil
}
