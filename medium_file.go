package sessionx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const (
	credentialsFileMode = 0o600
	credentialsDirMode  = 0o700
)

// FileMedium persists values as a single JSON document. Writes go to a
// temporary file that is renamed over the target, so readers never observe
// a partially written document.
type FileMedium struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFileMedium returns a medium backed by the JSON file at path on the
// operating system filesystem.
func NewFileMedium(path string) *FileMedium {
	return NewFileMediumFs(afero.NewOsFs(), path)
}

// NewFileMediumFs returns a medium backed by path on fs.
func NewFileMediumFs(fs afero.Fs, path string) *FileMedium {
	return &FileMedium{fs: fs, path: path}
}

// DefaultCredentialsPath returns the per-user credentials file location.
func DefaultCredentialsPath(app string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, app, "credentials.json"), nil
}

// Path returns the file the medium writes to.
func (m *FileMedium) Path() string {
	return m.path
}

// Get implements Medium.
func (m *FileMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

// Set implements Medium.
func (m *FileMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		// An unreadable document is replaced rather than blocking new logins.
		doc = make(map[string]string)
	}
	doc[key] = value
	return m.write(doc)
}

// Delete implements Medium.
func (m *FileMedium) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return m.remove()
	}
	for _, k := range keys {
		delete(doc, k)
	}
	if len(doc) == 0 {
		return m.remove()
	}
	return m.write(doc)
}

func (m *FileMedium) load() (map[string]string, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read %s: %w", m.path, err)
	}
	doc := make(map[string]string)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.path, err)
	}
	return doc, nil
}

func (m *FileMedium) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := m.fs.MkdirAll(dir, credentialsDirMode); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(m.fs, dir, "."+filepath.Base(m.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = m.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := m.fs.Chmod(tmpName, credentialsFileMode); err != nil {
		cleanup()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := m.fs.Rename(tmpName, m.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", m.path, err)
	}
	return nil
}

func (m *FileMedium) remove() error {
	if err := m.fs.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", m.path, err)
	}
	return nil
}
