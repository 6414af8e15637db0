package storage

import "bytes"

type prefixStore struct {
	parent KVStore
	prefix []byte
}

// Prefix returns a view of parent where every key is transparently
// namespaced under prefix. Iteration yields keys with the prefix stripped.
func Prefix(parent KVStore, prefix []byte) KVStore {
	if p, ok := parent.(*prefixStore); ok {
		return &prefixStore{parent: p.parent, prefix: concat(p.prefix, prefix)}
	}
	return &prefixStore{parent: parent, prefix: bytes.Clone(prefix)}
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func (p *prefixStore) key(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return concat(p.prefix, key), nil
}

func (p *prefixStore) Get(key []byte) ([]byte, error) {
	full, err := p.key(key)
	if err != nil {
		return nil, err
	}
	return p.parent.Get(full)
}

func (p *prefixStore) Has(key []byte) (bool, error) {
	full, err := p.key(key)
	if err != nil {
		return false, err
	}
	return p.parent.Has(full)
}

func (p *prefixStore) Set(key, value []byte) error {
	full, err := p.key(key)
	if err != nil {
		return err
	}
	return p.parent.Set(full, value)
}

func (p *prefixStore) Delete(key []byte) error {
	full, err := p.key(key)
	if err != nil {
		return err
	}
	return p.parent.Delete(full)
}

func (p *prefixStore) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	strip := len(p.prefix)
	return p.parent.Iterate(concat(p.prefix, prefix), func(key, value []byte) (bool, error) {
		return fn(key[strip:], value)
	})
}

type readOnlyStore struct {
	parent KVStore
}

// ReadOnly wraps parent so that every mutation fails with
// ErrReadOnlyViolation.
func ReadOnly(parent KVStore) KVStore {
	if ro, ok := parent.(*readOnlyStore); ok {
		return ro
	}
	return &readOnlyStore{parent: parent}
}

// IsReadOnly reports whether kv rejects writes.
func IsReadOnly(kv KVStore) bool {
	switch v := kv.(type) {
	case *readOnlyStore:
		return true
	case *prefixStore:
		return IsReadOnly(v.parent)
	default:
		return false
	}
}

func (r *readOnlyStore) Get(key []byte) ([]byte, error) { return r.parent.Get(key) }
func (r *readOnlyStore) Has(key []byte) (bool, error)   { return r.parent.Has(key) }
func (r *readOnlyStore) Set([]byte, []byte) error        { return ErrReadOnlyViolation }
func (r *readOnlyStore) Delete([]byte) error             { return ErrReadOnlyViolation }

func (r *readOnlyStore) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return r.parent.Iterate(prefix, fn)
}
