package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	sessionFileName = "session.json"
	fileVersion     = 1
)

// document is the on-disk layout of a FileStorage.
type document struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStorage keeps all values in a single JSON document on the local filesystem.
// Every write replaces the document atomically.
type FileStorage struct {
	mu      sync.Mutex
	baseDir string
}

var (
	_ Storage = (*FileStorage)(nil)
	_ Batcher = (*FileStorage)(nil)
)

// DefaultDir returns ~/.profiledir.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".profiledir"), nil
}

// NewFileStorage creates a file storage rooted at baseDir.
// If baseDir is empty, uses ~/.profiledir/
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if baseDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("file storage initialized")

	return &FileStorage{baseDir: baseDir}, nil
}

// Path returns the location of the session document.
func (f *FileStorage) Path() string {
	return filepath.Join(f.baseDir, sessionFileName)
}

func (f *FileStorage) Put(key, value string) error {
	return f.PutAll(map[string]string{key: value})
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}

	value, ok := doc.Values[key]
	return value, ok, nil
}

func (f *FileStorage) Remove(key string) error {
	return f.RemoveAll(key)
}

func (f *FileStorage) PutAll(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	maps.Copy(doc.Values, values)

	return f.save(doc)
}

func (f *FileStorage) RemoveAll(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	for _, key := range keys {
		delete(doc.Values, key)
	}

	return f.save(doc)
}

// load reads the document. A missing or unreadable document is treated as empty
// and is replaced on the next write.
func (f *FileStorage) load() (*document, error) {
	empty := &document{Version: fileVersion, Values: make(map[string]string)}

	data, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", f.Path()).Msg("session file is corrupt, starting empty")
		return empty, nil
	}

	if doc.Values == nil {
		doc.Values = make(map[string]string)
	}

	return &doc, nil
}

// save writes the document atomically.
func (f *FileStorage) save(doc *document) error {
	doc.Version = fileVersion

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session file: %w", err)
	}

	// Write to temp file first
	path := f.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session file: %w", err)
	}

	return nil
}
