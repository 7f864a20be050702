package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".vec"

// FileStore keeps one file per key under a directory.
type FileStore struct {
	dir string
	log *slog.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, log: log}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Get returns the cached vector. Missing or unreadable entries are misses.
func (s *FileStore) Get(key string) ([]float32, bool) {
	buf, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("cache: read failed", "key", key, "error", err)
		}
		return nil, false
	}
	vec, err := decode(buf)
	if err != nil {
		s.log.Warn("cache: ignoring corrupt entry", "key", key)
		return nil, false
	}
	return vec, true
}

// Set writes the vector through a temp file and rename, so readers never
// see a partial entry. The last write wins.
func (s *FileStore) Set(key string, vec []float32) {
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		s.log.Warn("cache: write failed", "key", key, "error", err)
		return
	}
	_, werr := tmp.Write(encode(vec))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		s.log.Warn("cache: write failed", "key", key, "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		s.log.Warn("cache: write failed", "key", key, "error", err)
	}
}

// Stats counts entries and their total size.
func (s *FileStore) Stats() (Stats, error) {
	var st Stats
	err := s.each(func(path string, info fs.FileInfo) error {
		st.Entries++
		st.Bytes += info.Size()
		return nil
	})
	return st, err
}

// Clear removes every entry and returns how many were removed.
func (s *FileStore) Clear() (int, error) {
	n := 0
	err := s.each(func(path string, _ fs.FileInfo) error {
		if err := os.Remove(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (s *FileStore) each(f func(path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cache: list %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if err := f(filepath.Join(s.dir, e.Name()), info); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}
