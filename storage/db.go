package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	// ErrEmptyKey is returned when a caller attempts to address the empty key.
	ErrEmptyKey = errors.New("storage: key must not be empty")
	// ErrEmptyValue is returned for writes of zero-length values. Callers
	// clear keys with Delete instead.
	ErrEmptyValue = errors.New("storage: value must not be empty")
	// ErrReadOnlyViolation is returned by read-only views on any mutation.
	ErrReadOnlyViolation = errors.New("storage: write attempted on read-only view")
)

// KVStore is a generic interface for the key-value surface every module
// operates on. Get returns (nil, nil) for absent keys. Iterate visits keys
// under the prefix in ascending byte order until fn reports stop.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) (stop bool, err error)) error
}

// KV is a single materialised record.
type KV struct {
	Key   []byte
	Value []byte
}

const layerCapacity = 4 << 10

func newLayer() *memdb.DB {
	return memdb.New(comparer.DefaultComparer, layerCapacity)
}

// --- In-Memory DB ---

// MemDB is a flat, sorted in-memory store. It backs the committed layer of
// Store and is useful on its own in tests.
type MemDB struct {
	db *memdb.DB
}

func NewMemDB() *MemDB {
	return &MemDB{db: newLayer()}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	value, err := m.db.Get(key)
	if errors.Is(err, memdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bytes.Clone(value), nil
}

func (m *MemDB) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	return m.db.Contains(key), nil
}

func (m *MemDB) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}
	return m.db.Put(key, value)
}

func (m *MemDB) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if err := m.db.Delete(key); err != nil && !errors.Is(err, memdb.ErrNotFound) {
		return err
	}
	return nil
}

func (m *MemDB) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	records := collect(m.db, prefix)
	for _, rec := range records {
		stop, err := fn(rec.Key, rec.Value)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// Len reports the number of live records.
func (m *MemDB) Len() int {
	return m.db.Len()
}

func rangeFor(prefix []byte) *util.Range {
	if len(prefix) == 0 {
		return nil
	}
	return util.BytesPrefix(prefix)
}

// collect copies the records of a flat layer out of the skiplist so callers
// may mutate the store from inside iteration callbacks.
func collect(db *memdb.DB, prefix []byte) []KV {
	it := db.NewIterator(rangeFor(prefix))
	defer it.Release()
	out := make([]KV, 0)
	for it.Next() {
		out = append(out, KV{Key: bytes.Clone(it.Key()), Value: bytes.Clone(it.Value())})
	}
	return out
}

func sortedRecords(merged map[string][]byte) []KV {
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, KV{Key: []byte(k), Value: merged[k]})
	}
	return out
}

func validateWrite(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return fmt.Errorf("%w (key %x)", ErrEmptyValue, key)
	}
	return nil
}
