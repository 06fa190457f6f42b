package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yourusername/reel-extract-go/internal/domain"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// TempFileManager hands out unique download paths inside one directory
// and guarantees they are removed again.
type TempFileManager struct {
	dir string

	mu     sync.Mutex
	active map[string]struct{}
}

// NewTempFileManager creates the directory if needed
func NewTempFileManager(dir string) (*TempFileManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempFileManager{dir: dir, active: make(map[string]struct{})}, nil
}

// Dir returns the managed directory
func (m *TempFileManager) Dir() string {
	return m.dir
}

// Acquire reserves a fresh path for one strategy attempt. Nothing is created on disk.
func (m *TempFileManager) Acquire(req domain.DownloadRequest, strategy string) (string, error) {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	name := fmt.Sprintf("%s_%s_%s.mp4",
		SanitizeFilename(string(req.Platform)),
		SanitizeFilename(id),
		SanitizeFilename(strategy))

	path, err := m.safePath(name)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, taken := m.active[path]; taken {
		m.mu.Unlock()
		return "", fmt.Errorf("temp path already in use: %s", name)
	}
	m.active[path] = struct{}{}
	m.mu.Unlock()
	return path, nil
}

// safePath joins name onto the managed directory and rejects anything that escapes it
func (m *TempFileManager) safePath(name string) (string, error) {
	absDir, err := filepath.Abs(m.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve temp directory: %w", err)
	}
	path := filepath.Join(absDir, filepath.Base(name))
	rel, err := filepath.Rel(absDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid temp file name: %s", name)
	}
	return path, nil
}

// Release removes path and any sibling files sharing its stem, such as
// .part, .ytdl or .info.json leftovers. Calling it twice is harmless.
func (m *TempFileManager) Release(path string) error {
	m.mu.Lock()
	delete(m.active, path)
	m.mu.Unlock()

	var firstErr error
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		firstErr = err
	}

	stem := strings.TrimSuffix(path, filepath.Ext(path))
	matches, err := filepath.Glob(globEscape(stem) + ".*")
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithTempFile acquires a path, runs fn with it and always releases the path afterwards,
// including when fn panics.
func (m *TempFileManager) WithTempFile(req domain.DownloadRequest, strategy string, fn func(path string) error) error {
	path, err := m.Acquire(req, strategy)
	if err != nil {
		return err
	}
	defer m.Release(path)
	return fn(path)
}

// ActiveCount returns the number of acquired, unreleased paths
func (m *TempFileManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Writable reports whether files can be created in the managed directory
func (m *TempFileManager) Writable() error {
	f, err := os.CreateTemp(m.dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// SanitizeFilename reduces s to characters safe for a file name component
func SanitizeFilename(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// globEscape escapes glob metacharacters so a literal path can be used as a pattern prefix
func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
