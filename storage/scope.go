package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/memdb"
)

// ErrScopeMismatch is returned when a scope is committed or rolled back out
// of stack order.
var ErrScopeMismatch = errors.New("storage: scope is not the active scope")

// Overlay layers tag every entry so deletions can shadow lower layers.
const (
	tagDeleted byte = 0x00
	tagValue   byte = 0x01
)

// Store is a stack of copy-on-write layers. Layer 0 holds committed state;
// every Begin pushes a writable overlay that shadows the layers below it.
// Reads resolve from the top of the stack downwards, so a scope always sees
// its own writes merged with everything beneath it.
//
// The layers live in an explicit arena indexed by depth rather than in
// caller stack frames: Rollback(d) drops layer d and everything above it in
// one step, whatever the caller recursion looked like.
//
// Store is not safe for concurrent use.
type Store struct {
	base   *MemDB
	layers []*memdb.DB
}

// NewStore creates an empty store with no open scopes.
func NewStore() *Store {
	return &Store{base: NewMemDB()}
}

// Depth reports the number of open scopes. Zero means writes go straight to
// the committed layer.
func (s *Store) Depth() int {
	return len(s.layers)
}

// Begin pushes a new writable scope and returns its depth.
func (s *Store) Begin() int {
	s.layers = append(s.layers, newLayer())
	return len(s.layers)
}

// Commit merges the scope at depth into the layer below and pops it. Only
// the innermost scope may be committed.
func (s *Store) Commit(depth int) error {
	if depth < 1 || depth != len(s.layers) {
		return fmt.Errorf("%w: commit depth %d, active %d", ErrScopeMismatch, depth, len(s.layers))
	}
	top := s.layers[depth-1]
	it := top.NewIterator(nil)
	defer it.Release()
	if depth == 1 {
		for it.Next() {
			key, entry := it.Key(), it.Value()
			var err error
			if entry[0] == tagDeleted {
				err = s.base.Delete(key)
			} else {
				err = s.base.Set(key, entry[1:])
			}
			if err != nil {
				return err
			}
		}
	} else {
		below := s.layers[depth-2]
		for it.Next() {
			if err := below.Put(it.Key(), it.Value()); err != nil {
				return err
			}
		}
	}
	s.layers[depth-1] = nil
	s.layers = s.layers[:depth-1]
	return nil
}

// Rollback discards the scope at depth together with every scope nested
// above it.
func (s *Store) Rollback(depth int) error {
	if depth < 1 || depth > len(s.layers) {
		return fmt.Errorf("%w: rollback depth %d, active %d", ErrScopeMismatch, depth, len(s.layers))
	}
	for i := depth - 1; i < len(s.layers); i++ {
		s.layers[i] = nil
	}
	s.layers = s.layers[:depth-1]
	return nil
}

// Get resolves key against the merged view of every open scope.
func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		entry, err := s.layers[i].Get(key)
		if errors.Is(err, memdb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if entry[0] == tagDeleted {
			return nil, nil
		}
		return bytes.Clone(entry[1:]), nil
	}
	return s.base.Get(key)
}

func (s *Store) Has(key []byte) (bool, error) {
	value, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return value != nil, nil
}

// Set writes into the innermost scope, or the committed layer when no scope
// is open.
func (s *Store) Set(key, value []byte) error {
	if err := validateWrite(key, value); err != nil {
		return err
	}
	if len(s.layers) == 0 {
		return s.base.Set(key, value)
	}
	entry := make([]byte, 1+len(value))
	entry[0] = tagValue
	copy(entry[1:], value)
	return s.layers[len(s.layers)-1].Put(key, entry)
}

func (s *Store) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(s.layers) == 0 {
		return s.base.Delete(key)
	}
	return s.layers[len(s.layers)-1].Put(key, []byte{tagDeleted})
}

// Iterate walks the merged view under prefix in ascending key order. The
// records are materialised before fn runs, so fn may write to the store.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	for _, rec := range s.merged(prefix) {
		stop, err := fn(rec.Key, rec.Value)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func (s *Store) merged(prefix []byte) []KV {
	if len(s.layers) == 0 {
		return collect(s.base.db, prefix)
	}
	view := make(map[string][]byte)
	for _, rec := range collect(s.base.db, prefix) {
		view[string(rec.Key)] = rec.Value
	}
	for _, layer := range s.layers {
		for _, rec := range collect(layer, prefix) {
			if rec.Value[0] == tagDeleted {
				delete(view, string(rec.Key))
				continue
			}
			view[string(rec.Key)] = rec.Value[1:]
		}
	}
	return sortedRecords(view)
}

// Snapshot returns every record of the merged view in key order.
func (s *Store) Snapshot() []KV {
	return s.merged(nil)
}

// Committed exposes a read-only view of the committed layer. It ignores any
// open scope.
func (s *Store) Committed() KVStore {
	return ReadOnly(s.base)
}
