package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is a SettingsStore backed by a LevelDB directory. Each module
// is one key holding a JSON object.
type LevelDBStore struct {
	db *leveldb.DB
	mu sync.Mutex // serializes read-modify-write in Set
}

// OpenLevelDBStore opens, or creates, the database at dir.
func OpenLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

const modulePrefix = "module:"

func moduleKey(module string) []byte { return []byte(modulePrefix + module) }

func (s *LevelDBStore) Get(module string) (map[string]any, error) {
	val, err := s.db.Get(moduleKey(module), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", module, err)
	}
	var m map[string]any
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", module, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func (s *LevelDBStore) Set(module string, value map[string]any, override bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old map[string]any
	if !override {
		var err error
		if old, err = s.Get(module); err != nil {
			return err
		}
	}
	b, err := json.Marshal(mergeSettings(old, value, override))
	if err != nil {
		return fmt.Errorf("encode %s: %w", module, err)
	}
	if err := s.db.Put(moduleKey(module), b, nil); err != nil {
		return fmt.Errorf("write %s: %w", module, err)
	}
	return nil
}

// Modules lists the stored module names.
func (s *LevelDBStore) Modules() ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(modulePrefix)), nil)
	defer iter.Release()

	var out []string
	for iter.Next() {
		out = append(out, string(iter.Key()[len(modulePrefix):]))
	}
	return out, iter.Error()
}

func (s *LevelDBStore) Close() error { return s.db.Close() }
