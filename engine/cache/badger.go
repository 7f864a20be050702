package cache

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

var keyPrefix = []byte("vec/")

// BadgerStore keeps entries in an embedded badger database.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

type badgerLogger struct{ log *slog.Logger }

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.log.Error(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.log.Debug(fmt.Sprintf(msg, args...)) }

// OpenBadger opens (or creates) a badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string, log *slog.Logger) (*BadgerStore, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{log: log}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func dbKey(key string) []byte {
	return append(append([]byte{}, keyPrefix...), key...)
}

// Get returns the cached vector.
func (s *BadgerStore) Get(key string) ([]float32, bool) {
	var vec []float32
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec, err = decode(val)
			return err
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Warn("cache: badger read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return vec, true
}

// Set stores vec under key.
func (s *BadgerStore) Set(key string, vec []float32) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(key), encode(vec))
	})
	if err != nil {
		s.log.Warn("cache: badger write failed", "key", key, "error", err)
	}
}

// Stats counts entries and value bytes.
func (s *BadgerStore) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.Entries++
			st.Bytes += it.Item().ValueSize()
		}
		return nil
	})
	return st, err
}

// Clear drops every entry.
func (s *BadgerStore) Clear() (int, error) {
	st, err := s.Stats()
	if err != nil {
		return 0, err
	}
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	return st.Entries, nil
}
