package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"chainsim/storage"
)

// Manager provides typed access to module records on top of a raw key/value
// store. Values are RLP encoded; keys are used verbatim so modules can lay
// out prefixes they iterate over.
type Manager struct {
	kv storage.KVStore
}

// NewManager creates a state manager operating on the provided store. The
// store is usually the active transaction scope handed out by the router.
func NewManager(kv storage.KVStore) *Manager {
	return &Manager{kv: kv}
}

// Store exposes the backing store in case callers need raw access.
func (m *Manager) Store() storage.KVStore {
	return m.kv
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return m.kv.Set(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes the key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.kv.Delete(key)
}

// KVIterate visits every record under prefix in key order, handing fn the
// key with the prefix still attached and the raw encoded value. Decode the
// value with Decode.
func (m *Manager) KVIterate(prefix []byte, fn func(key, raw []byte) (bool, error)) error {
	return m.kv.Iterate(prefix, fn)
}

// Decode unpacks a raw value obtained from KVIterate.
func Decode(raw []byte, out interface{}) error {
	return rlp.DecodeBytes(raw, out)
}

// NextSequence increments the counter stored under key and returns the value
// it held before the increment. Counters start at zero.
func (m *Manager) NextSequence(key []byte) (uint64, error) {
	current, err := m.Sequence(key)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], current+1)
	if err := m.kv.Set(key, buf[:]); err != nil {
		return 0, err
	}
	return current, nil
}

// Sequence reads the counter stored under key without advancing it.
func (m *Manager) Sequence(key []byte) (uint64, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("kv: sequence %q is corrupt", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

// Key joins path segments with '/' into a state key. Segments may be raw
// bytes (addresses) or strings.
func Key(segments ...[]byte) []byte {
	size := len(segments)
	for _, s := range segments {
		size += len(s)
	}
	out := make([]byte, 0, size)
	for i, s := range segments {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, s...)
	}
	return out
}
