package jobcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"autolecture/log"
)

// FileStore keeps the cache as one JSON object {sourceKey: jobID} on disk.
// The whole document is loaded on construction. Put re-reads the file,
// merges the new entry over what is there, and replaces the file through a
// rename so readers never see a half-written document.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]string
}

func NewFileStore(path string) *FileStore {
	s := &FileStore{path: path}
	entries, err := s.read()
	if err != nil {
		log.GetLogger().Warn("[JobCache] cache file unreadable, starting empty",
			zap.String("path", path), zap.Error(err))
	}
	s.entries = entries
	return s
}

func (s *FileStore) Get(_ context.Context, sourceKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entries[sourceKey]
	return id, ok
}

func (s *FileStore) Put(_ context.Context, sourceKey, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := s.read()
	if err != nil {
		log.GetLogger().Warn("[JobCache] cache file unreadable, rewriting",
			zap.String("path", s.path), zap.Error(err))
	}
	merged := lo.Assign(s.entries, onDisk, map[string]string{sourceKey: jobID})
	if err = s.write(merged); err != nil {
		return err
	}
	s.entries = merged
	return nil
}

// read returns an empty map, never nil. A missing file is not an error.
func (s *FileStore) read() (map[string]string, error) {
	entries := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return entries, err
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err = json.Unmarshal(data, &entries); err != nil {
		return make(map[string]string), fmt.Errorf("decode %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
